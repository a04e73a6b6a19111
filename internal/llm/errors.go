package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can tell a transport
// problem from a malformed model reply or a bad configuration.
type Kind int

const (
	KindNetwork Kind = iota
	KindParse
	KindFile
	KindConfig
	KindTimeout
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindParse:
		return "parse error"
	case KindFile:
		return "file error"
	case KindConfig:
		return "configuration error"
	case KindTimeout:
		return "timeout error"
	case KindSerialization:
		return "serialization error"
	default:
		return "unknown error"
	}
}

// Error carries the failure kind, the pipeline stage that produced it and an
// optional wrapped cause.
type Error struct {
	Kind  Kind
	Stage string // e.g. "segmentation", "chunk 2/5", "final synthesis"
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Stage != "" {
		s = fmt.Sprintf("%s [%s]", s, e.Stage)
	}
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by kind, so errors.Is(err, &Error{Kind: KindParse})
// works regardless of message or stage.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NetworkError(err error, format string, args ...any) *Error {
	return newError(KindNetwork, err, format, args...)
}

func ParseError(err error, format string, args ...any) *Error {
	return newError(KindParse, err, format, args...)
}

func FileError(err error, format string, args ...any) *Error {
	return newError(KindFile, err, format, args...)
}

func ConfigError(err error, format string, args ...any) *Error {
	return newError(KindConfig, err, format, args...)
}

func TimeoutError(err error, format string, args ...any) *Error {
	return newError(KindTimeout, err, format, args...)
}

func SerializationError(err error, format string, args ...any) *Error {
	return newError(KindSerialization, err, format, args...)
}

// WithStage tags err with the pipeline stage it came from. Typed errors keep
// their kind; anything else becomes a plain wrapped error.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Stage == "" {
		return &Error{Kind: e.Kind, Stage: stage, Msg: e.Msg, Err: e.Err}
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// KindOf reports the kind of err, or false if err is not a typed llm error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
