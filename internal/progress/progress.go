// Package progress carries fire-and-forget lifecycle events out of the
// summarization pipeline. Sinks are synchronous observers; they must not
// block, and their failures never reach the pipeline.
package progress

import (
	"fmt"
	"time"

	"github.com/nbeier/meetscribe/internal/logger"
)

const (
	TopicStarted       = "summarization-started"        // payload: meeting id
	TopicChunkStart    = "summarization-chunk-start"    // payload: total step count
	TopicChunkProgress = "summarization-chunk-progress" // payload: zero-based step index
	TopicStatus        = "llm-progress"                 // payload: human-readable message
	TopicCompleted     = "summarization-completed"      // payload: elapsed duration
)

// Sink receives (topic, payload) pairs emitted at fixed pipeline checkpoints.
type Sink interface {
	Emit(topic string, payload any)
}

// LogSink writes every event to the application log.
type LogSink struct{}

func (LogSink) Emit(topic string, payload any) {
	logger.Infof("[Progress] %s: %v", topic, payload)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(topic string, payload any) {}

// Tracker counts steps of one summarization run and forwards checkpoint
// events to a sink.
type Tracker struct {
	sink        Sink
	totalSteps  int
	currentStep int
}

func NewTracker(sink Sink, totalSteps int) *Tracker {
	if sink == nil {
		sink = NopSink{}
	}
	return &Tracker{sink: sink, totalSteps: totalSteps}
}

// Start announces the run and its total step count.
func (t *Tracker) Start(meetingID string) {
	t.sink.Emit(TopicStarted, meetingID)
	t.sink.Emit(TopicChunkStart, t.totalSteps)
}

// Step advances the step counter and emits both the step index and a
// human-readable status line.
func (t *Tracker) Step(message string) {
	t.currentStep++
	t.sink.Emit(TopicChunkProgress, t.currentStep-1)
	t.sink.Emit(TopicStatus, fmt.Sprintf("Step %d/%d: %s", t.currentStep, t.totalSteps, message))
}

// Status emits a free-form status message without advancing the counter.
func (t *Tracker) Status(message string) {
	t.sink.Emit(TopicStatus, message)
}

// Complete announces the end of the run with its elapsed duration.
func (t *Tracker) Complete(elapsed time.Duration) {
	t.sink.Emit(TopicCompleted, elapsed)
	t.sink.Emit(TopicStatus, fmt.Sprintf("Summary completed in %.1fs", elapsed.Seconds()))
}

// LogChunkStats emits per-run chunk timing statistics.
func (t *Tracker) LogChunkStats(chunkTimes []time.Duration) {
	if len(chunkTimes) == 0 {
		return
	}

	var total time.Duration
	minTime, maxTime := chunkTimes[0], chunkTimes[0]
	for _, d := range chunkTimes {
		total += d
		if d < minTime {
			minTime = d
		}
		if d > maxTime {
			maxTime = d
		}
	}
	avg := total / time.Duration(len(chunkTimes))

	logger.Debugf("[Progress] chunk timings: total=%.2fs avg=%.2fs min=%.2fs max=%.2fs",
		total.Seconds(), avg.Seconds(), minTime.Seconds(), maxTime.Seconds())
	t.sink.Emit(TopicStatus, fmt.Sprintf("Chunk stats: avg %.1fs/chunk, total %.1fs for %d chunks",
		avg.Seconds(), total.Seconds(), len(chunkTimes)))
}
