package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/nbeier/meetscribe/internal/config"
	"github.com/nbeier/meetscribe/internal/llm"
	"github.com/nbeier/meetscribe/internal/progress"
	"github.com/nbeier/meetscribe/internal/prompts"
	"github.com/nbeier/meetscribe/internal/summary"
	"github.com/stretchr/testify/assert"
)

const finalJSON = `{"title":{"emoji":"📊","text":"Team Sync"},"key_facts":{"moderator":"Alice","attendees":[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}]},"summary":"A productive meeting.","topics":[{"title":"Status","bullet_points":["on track"]}],"todos":[{"assignees":["Bob"],"task":"ship it"}]}`

// genCall records one gateway invocation.
type genCall struct {
	system    string
	user      string
	hasFormat bool
}

// mockGenerator answers gateway calls from a handler and records them.
type mockGenerator struct {
	mu      sync.Mutex
	calls   []genCall
	handler func(call int, system, user string) (string, error)
}

func (m *mockGenerator) GenerateText(ctx context.Context, system, user string, format *jsonschema.Schema) (string, error) {
	m.mu.Lock()
	call := len(m.calls)
	m.calls = append(m.calls, genCall{system: system, user: user, hasFormat: format != nil})
	m.mu.Unlock()
	return m.handler(call, system, user)
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// blockingGenerator parks every call until release is closed.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *blockingGenerator) GenerateText(ctx context.Context, system, user string, format *jsonschema.Schema) (string, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return finalJSON, nil
}

type mockTranscripts struct {
	transcripts map[string]string
	err         error
}

func (m *mockTranscripts) ReadTranscript(meetingID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	text, ok := m.transcripts[meetingID]
	if !ok {
		return "", errors.New("no such meeting")
	}
	return text, nil
}

type mockArtifacts struct {
	mu              sync.Mutex
	chunks          map[int]string
	chunkSummaries  map[int][]byte
	digest          []string
	final           *summary.FinalSummary
	preloaded       []summary.PartialSummary
	failChunkWrites bool
	failFinal       bool
}

func newMockArtifacts() *mockArtifacts {
	return &mockArtifacts{
		chunks:         make(map[int]string),
		chunkSummaries: make(map[int][]byte),
	}
}

func (m *mockArtifacts) WriteChunk(meetingID string, index int, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChunkWrites {
		return errors.New("disk full")
	}
	m.chunks[index] = content
	return nil
}

func (m *mockArtifacts) WriteChunkSummary(meetingID string, index int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChunkWrites {
		return errors.New("disk full")
	}
	m.chunkSummaries[index] = data
	return nil
}

func (m *mockArtifacts) WriteAllChunkSummaries(meetingID string, summaries []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChunkWrites {
		return errors.New("disk full")
	}
	m.digest = summaries
	return nil
}

func (m *mockArtifacts) WriteFinalSummary(meetingID string, final *summary.FinalSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFinal {
		return errors.New("disk full")
	}
	m.final = final
	return nil
}

func (m *mockArtifacts) ReadChunkSummaries(meetingID string) ([]summary.PartialSummary, error) {
	return m.preloaded, nil
}

func (m *mockArtifacts) finalWritten() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.final != nil
}

type mockCatalog struct {
	mu     sync.Mutex
	titles map[string]string
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{titles: make(map[string]string)}
}

func (m *mockCatalog) Ensure(ctx context.Context, meetingID string) error {
	return nil
}

func (m *mockCatalog) SetTitle(ctx context.Context, meetingID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles[meetingID] = title
	return nil
}

type recordedEvent struct {
	topic   string
	payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) Emit(topic string, payload any) {
	s.mu.Lock()
	s.events = append(s.events, recordedEvent{topic: topic, payload: payload})
	s.mu.Unlock()
}

func (s *recordingSink) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.topic
	}
	return out
}

func testLLMConfig() *config.LLM {
	return &config.LLM{
		Model:          "llama3.1",
		ChunkSize:      10_000,
		ChunkThreshold: 10_000,
		ContextSize:    8096,
		MaxRetries:     0,
		TimeoutSeconds: 30,
	}
}

// longTranscript is about 25k characters of clean sentences, which the
// segmenter cuts into exactly three chunks of at most 10k characters.
func longTranscript() string {
	return strings.Repeat("All work and no play makes Jack a dull boy. ", 569)
}

func chunkPartialJSON(chunkCall int) string {
	partial := summary.PartialSummary{
		Topics: []summary.Topic{
			{Title: fmt.Sprintf("topic-%d-a", chunkCall+1), BulletPoints: []string{"point"}},
			{Title: fmt.Sprintf("topic-%d-b", chunkCall+1), BulletPoints: []string{"point"}},
		},
	}
	switch chunkCall {
	case 0:
		partial.KeyFacts.Attendees = []summary.Attendee{{ID: 1, Name: "Alice"}}
	case 1:
		partial.KeyFacts.Attendees = []summary.Attendee{{ID: 1, Name: "Alicia"}, {ID: 2, Name: "Bob"}}
	}
	data, _ := json.Marshal(&partial)
	return string(data)
}

// chunkedHandler answers chunk-extraction calls with scripted partials and the
// final-synthesis call with finalJSON.
func chunkedHandler() func(call int, system, user string) (string, error) {
	chunkCalls := 0
	return func(call int, system, user string) (string, error) {
		if system == prompts.FinalSummary() {
			return finalJSON, nil
		}
		resp := chunkPartialJSON(chunkCalls)
		chunkCalls++
		return resp, nil
	}
}

func newTestPipeline(gen llm.Generator, transcript string) (*Pipeline, *mockArtifacts, *mockCatalog, *recordingSink) {
	artifacts := newMockArtifacts()
	catalog := newMockCatalog()
	sink := &recordingSink{}
	transcripts := &mockTranscripts{transcripts: map[string]string{"m1": transcript}}
	p := New(testLLMConfig(), gen, transcripts, artifacts, catalog, sink)
	return p, artifacts, catalog, sink
}

func TestRunChunkedEndToEnd(t *testing.T) {
	gen := &mockGenerator{handler: chunkedHandler()}
	p, artifacts, catalog, sink := newTestPipeline(gen, longTranscript())

	final, err := p.Run(context.Background(), "m1")

	assert.NoError(t, err)
	assert.NotNil(t, final)
	assert.Equal(t, "Team Sync", final.Title.Text)

	// Three chunks, one artifact pair each, plus the digest.
	assert.Len(t, artifacts.chunks, 3)
	assert.Len(t, artifacts.chunkSummaries, 3)
	assert.Len(t, artifacts.digest, 3)
	assert.True(t, artifacts.finalWritten())
	assert.Equal(t, "📊 Team Sync", catalog.titles["m1"])

	// Three chunk calls plus one final call, all schema-constrained.
	assert.Equal(t, 4, gen.callCount())
	for _, call := range gen.calls {
		assert.True(t, call.hasFormat)
	}

	// The final call's payload is the mechanical merge: topic count is the
	// sum over chunks, attendees are unioned with first-seen names winning.
	finalCall := gen.calls[3]
	assert.Equal(t, prompts.FinalSummary(), finalCall.system)
	var merged summary.PartialSummary
	assert.NoError(t, json.Unmarshal([]byte(finalCall.user), &merged))
	assert.Len(t, merged.Topics, 6)
	assert.Equal(t, []summary.Attendee{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}}, merged.KeyFacts.Attendees)

	// Key facts accumulated from earlier chunks are threaded into later
	// chunk prompts.
	assert.Contains(t, gen.calls[2].system, "Alice")
	assert.Contains(t, gen.calls[2].system, "Bob")
	assert.NotContains(t, gen.calls[0].system, "Alice")

	topics := sink.topics()
	assert.Contains(t, topics, progress.TopicStarted)
	assert.Contains(t, topics, progress.TopicChunkProgress)
	assert.Contains(t, topics, progress.TopicCompleted)
}

func TestRunDirectShortTranscript(t *testing.T) {
	transcript := "Short meeting. Everyone agreed quickly."
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		return finalJSON, nil
	}}
	p, artifacts, catalog, _ := newTestPipeline(gen, transcript)

	final, err := p.Run(context.Background(), "m1")

	assert.NoError(t, err)
	assert.NotNil(t, final)

	// One single-pass call reusing the final-synthesis prompt on the raw
	// transcript; no chunk artifacts.
	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, prompts.FinalSummary(), gen.calls[0].system)
	assert.Equal(t, transcript, gen.calls[0].user)
	assert.Empty(t, artifacts.chunks)
	assert.True(t, artifacts.finalWritten())
	assert.Equal(t, "📊 Team Sync", catalog.titles["m1"])
}

func TestRunEmptyTranscript(t *testing.T) {
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		return finalJSON, nil
	}}
	p, artifacts, _, _ := newTestPipeline(gen, "   \n ")

	_, err := p.Run(context.Background(), "m1")

	assert.Error(t, err)
	kind, ok := llm.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.KindFile, kind)
	assert.Equal(t, 0, gen.callCount())
	assert.False(t, artifacts.finalWritten())
}

func TestRunTranscriptFetchError(t *testing.T) {
	p := New(testLLMConfig(), &mockGenerator{}, &mockTranscripts{err: errors.New("io error")}, newMockArtifacts(), newMockCatalog(), nil)

	_, err := p.Run(context.Background(), "m1")

	kind, ok := llm.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.KindFile, kind)
	assert.Contains(t, err.Error(), "transcript fetch")
}

func TestRunBusyGuardRejectsConcurrentRequest(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	p, _, _, _ := newTestPipeline(gen, "Short meeting. Everyone agreed quickly.")

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), "m1")
		done <- err
	}()
	<-gen.started

	running, busy := p.Running()
	assert.True(t, busy)
	assert.Equal(t, "m1", running)

	// A second request for any meeting is rejected, never queued.
	_, err := p.Run(context.Background(), "m2")
	kind, ok := llm.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.KindConfig, kind)
	assert.Contains(t, err.Error(), "already running")

	close(gen.release)
	assert.NoError(t, <-done)

	// After the first run finishes the guard is released.
	_, busy = p.Running()
	assert.False(t, busy)
	_, err = p.Run(context.Background(), "m1")
	assert.NoError(t, err)
}

func TestRunGuardReleasedAfterFailure(t *testing.T) {
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		return "", llm.ParseError(nil, "backend produced garbage")
	}}
	p, _, _, _ := newTestPipeline(gen, "Short meeting. Everyone agreed quickly.")

	_, err := p.Run(context.Background(), "m1")
	assert.Error(t, err)

	_, busy := p.Running()
	assert.False(t, busy)
}

func TestRunMalformedFinalResponse(t *testing.T) {
	chunkCalls := 0
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		if system == prompts.FinalSummary() {
			return "definitely not json", nil
		}
		resp := chunkPartialJSON(chunkCalls)
		chunkCalls++
		return resp, nil
	}}
	p, artifacts, catalog, _ := newTestPipeline(gen, longTranscript())

	_, err := p.Run(context.Background(), "m1")

	assert.Error(t, err)
	kind, ok := llm.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.KindParse, kind)
	assert.Contains(t, err.Error(), "final synthesis")

	// Chunk artifacts exist but no final summary was written.
	assert.Len(t, artifacts.chunkSummaries, 3)
	assert.False(t, artifacts.finalWritten())
	assert.Empty(t, catalog.titles)
}

func TestRunMalformedChunkResponse(t *testing.T) {
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		return "garbage", nil
	}}
	p, artifacts, _, _ := newTestPipeline(gen, longTranscript())

	_, err := p.Run(context.Background(), "m1")

	assert.Error(t, err)
	kind, ok := llm.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.KindParse, kind)
	assert.Contains(t, err.Error(), "chunk 1 of 3")
	assert.Equal(t, 1, gen.callCount())
	assert.False(t, artifacts.finalWritten())
}

func TestRunRetriesNetworkFailures(t *testing.T) {
	failures := 2
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		if call < failures {
			return "", llm.NetworkError(errors.New("connection reset"), "request failed")
		}
		return finalJSON, nil
	}}
	p, _, _, _ := newTestPipeline(gen, "Short meeting. Everyone agreed quickly.")
	p.cfg.MaxRetries = 2

	final, err := p.Run(context.Background(), "m1")

	assert.NoError(t, err)
	assert.NotNil(t, final)
	assert.Equal(t, 3, gen.callCount())
}

func TestRunDoesNotRetryParseFailures(t *testing.T) {
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		return "", llm.ParseError(nil, "malformed body")
	}}
	p, _, _, _ := newTestPipeline(gen, "Short meeting. Everyone agreed quickly.")
	p.cfg.MaxRetries = 5

	_, err := p.Run(context.Background(), "m1")

	assert.Error(t, err)
	assert.Equal(t, 1, gen.callCount())
}

func TestRunChunkArtifactFailuresAreSwallowed(t *testing.T) {
	gen := &mockGenerator{handler: chunkedHandler()}
	p, artifacts, _, _ := newTestPipeline(gen, longTranscript())
	artifacts.failChunkWrites = true

	final, err := p.Run(context.Background(), "m1")

	assert.NoError(t, err)
	assert.NotNil(t, final)
	assert.True(t, artifacts.finalWritten())
}

func TestRunFinalPersistFailureIsFatal(t *testing.T) {
	gen := &mockGenerator{handler: chunkedHandler()}
	p, artifacts, _, _ := newTestPipeline(gen, "Short meeting. Everyone agreed quickly.")
	artifacts.failFinal = true

	_, err := p.Run(context.Background(), "m1")

	assert.Error(t, err)
	kind, ok := llm.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.KindFile, kind)
	assert.Contains(t, err.Error(), "final persistence")
}

func TestRegenerateFinal(t *testing.T) {
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		return finalJSON, nil
	}}
	p, artifacts, catalog, _ := newTestPipeline(gen, "")
	artifacts.preloaded = []summary.PartialSummary{
		{Topics: []summary.Topic{{Title: "a"}, {Title: "b"}}},
		{Topics: []summary.Topic{{Title: "c"}}},
	}

	final, err := p.RegenerateFinal(context.Background(), "m1")

	assert.NoError(t, err)
	assert.NotNil(t, final)
	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, prompts.FinalSummary(), gen.calls[0].system)

	var merged summary.PartialSummary
	assert.NoError(t, json.Unmarshal([]byte(gen.calls[0].user), &merged))
	assert.Len(t, merged.Topics, 3)
	assert.True(t, artifacts.finalWritten())
	assert.Equal(t, "📊 Team Sync", catalog.titles["m1"])
}

func TestRegenerateFinalWithoutSavedChunks(t *testing.T) {
	p, _, _, _ := newTestPipeline(&mockGenerator{}, "")

	_, err := p.RegenerateFinal(context.Background(), "m1")

	kind, ok := llm.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.KindFile, kind)
}

func TestTestConnection(t *testing.T) {
	gen := &mockGenerator{handler: func(call int, system, user string) (string, error) {
		return "  Hello! LLM test successful.  ", nil
	}}
	p, _, _, _ := newTestPipeline(gen, "")

	response, err := p.TestConnection(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "Hello! LLM test successful.", response)
	assert.False(t, gen.calls[0].hasFormat)
}
