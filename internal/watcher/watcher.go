// Package watcher monitors an inbox directory for dropped transcript files
// and triggers a summarization run for each one.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nbeier/meetscribe/internal/logger"
	"github.com/nbeier/meetscribe/internal/pipeline"
	"github.com/nbeier/meetscribe/internal/store"
	"github.com/nbeier/meetscribe/internal/summary"
)

// runner is the slice of the pipeline the watcher needs.
type runner interface {
	Run(ctx context.Context, meetingID string) (*summary.FinalSummary, error)
}

type Watcher struct {
	inboxDir string
	files    *store.FileStore
	pipe     runner
	fsw      *fsnotify.Watcher
	wg       sync.WaitGroup
}

func New(inboxDir string, files *store.FileStore, pipe *pipeline.Pipeline) (*Watcher, error) {
	if err := os.MkdirAll(inboxDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(inboxDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", inboxDir, err)
	}

	return &Watcher{
		inboxDir: inboxDir,
		files:    files,
		pipe:     pipe,
		fsw:      fsw,
	}, nil
}

// Start blocks until ctx is canceled, importing and summarizing every .txt
// file that lands in the inbox. A file arriving while a run is in flight is
// rejected by the pipeline's busy guard and logged, not queued.
func (w *Watcher) Start(ctx context.Context) error {
	logger.Infof("[Watcher] watching %s for transcript files", w.inboxDir)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("[Watcher] waiting for in-flight summarization to finish...")
			w.wg.Wait()
			logger.Infof("[Watcher] stopped")
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".txt") {
				logger.Debugf("[Watcher] ignoring non-transcript file: %s", event.Name)
				continue
			}

			logger.Infof("[Watcher] new transcript detected: %s", event.Name)

			// Give the writer a moment to finish the file.
			time.Sleep(500 * time.Millisecond)

			w.wg.Add(1)
			go func(path string) {
				defer w.wg.Done()
				if err := w.handleTranscript(ctx, path); err != nil {
					logger.Errorf("[Watcher] failed to process %s: %v", path, err)
				}
			}(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Errorf("[Watcher] error: %v", err)
		}
	}
}

func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

// handleTranscript imports the dropped file into the meeting library and runs
// the summarization pipeline on it.
func (w *Watcher) handleTranscript(ctx context.Context, path string) error {
	meetingID := meetingIDFromPath(path)

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	if err := w.files.ImportTranscript(meetingID, string(content)); err != nil {
		return fmt.Errorf("import transcript: %w", err)
	}
	if err := os.Remove(path); err != nil {
		logger.Warnf("[Watcher] failed to remove inbox file %s: %v", path, err)
	}

	if _, err := w.pipe.Run(ctx, meetingID); err != nil {
		return fmt.Errorf("summarize meeting %s: %w", meetingID, err)
	}
	logger.Infof("[Watcher] meeting %s summarized", meetingID)
	return nil
}

// meetingIDFromPath derives a filesystem-safe meeting id from the dropped
// file name.
func meetingIDFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	if name == "" {
		name = fmt.Sprintf("meeting-%d", time.Now().Unix())
	}
	return name
}
