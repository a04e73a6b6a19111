// Package pipeline drives the multi-stage structured summarization of meeting
// transcripts: segmentation, per-chunk extraction with key-facts threading,
// mechanical merge and final synthesis.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/nbeier/meetscribe/internal/config"
	"github.com/nbeier/meetscribe/internal/llm"
	"github.com/nbeier/meetscribe/internal/logger"
	"github.com/nbeier/meetscribe/internal/progress"
	"github.com/nbeier/meetscribe/internal/prompts"
	"github.com/nbeier/meetscribe/internal/summary"
	"github.com/nbeier/meetscribe/internal/textsplit"
)

// transcriptStore reads the plain transcript of a meeting.
type transcriptStore interface {
	ReadTranscript(meetingID string) (string, error)
}

// artifactStore persists side artifacts and the final summary. Chunk writes
// are best-effort; the final summary write is required.
type artifactStore interface {
	WriteChunk(meetingID string, index int, content string) error
	WriteChunkSummary(meetingID string, index int, data []byte) error
	WriteAllChunkSummaries(meetingID string, summaries []string) error
	WriteFinalSummary(meetingID string, final *summary.FinalSummary) error
	ReadChunkSummaries(meetingID string) ([]summary.PartialSummary, error)
}

// meetingCatalog records meeting titles.
type meetingCatalog interface {
	Ensure(ctx context.Context, meetingID string) error
	SetTitle(ctx context.Context, meetingID, title string) error
}

type Pipeline struct {
	cfg         *config.LLM
	generator   llm.Generator
	transcripts transcriptStore
	artifacts   artifactStore
	catalog     meetingCatalog
	sink        progress.Sink
	guard       flightGuard
}

func New(cfg *config.LLM, generator llm.Generator, transcripts transcriptStore, artifacts artifactStore, catalog meetingCatalog, sink progress.Sink) *Pipeline {
	if sink == nil {
		sink = progress.NopSink{}
	}
	return &Pipeline{
		cfg:         cfg,
		generator:   generator,
		transcripts: transcripts,
		artifacts:   artifacts,
		catalog:     catalog,
		sink:        sink,
	}
}

// Running reports the meeting currently being summarized, if any.
func (p *Pipeline) Running() (string, bool) {
	return p.guard.running()
}

// Run summarizes one meeting end to end and persists the result. At most one
// run may be in flight process-wide; a concurrent request is rejected
// immediately with a configuration error.
func (p *Pipeline) Run(ctx context.Context, meetingID string) (*summary.FinalSummary, error) {
	if !p.guard.tryAcquire(meetingID) {
		current, _ := p.guard.running()
		return nil, llm.ConfigError(nil, "another summarization is already running (meeting %s)", current)
	}
	defer p.guard.release()

	start := time.Now()
	logger.Infof("[Pipeline] starting summary generation for meeting %s", meetingID)

	transcript, err := p.transcripts.ReadTranscript(meetingID)
	if err != nil {
		return nil, llm.WithStage(llm.FileError(err, "failed to get transcript for meeting %s", meetingID), "transcript fetch")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, llm.WithStage(llm.FileError(nil, "no transcript to summarize for meeting %s", meetingID), "transcript fetch")
	}

	if err := p.catalog.Ensure(ctx, meetingID); err != nil {
		logger.Warnf("[Pipeline] failed to register meeting %s in catalog: %v", meetingID, err)
	}

	var final *summary.FinalSummary
	if len([]rune(transcript)) > p.cfg.ChunkThreshold {
		final, err = p.summarizeLongTranscript(ctx, meetingID, transcript)
	} else {
		final, err = p.summarizeDirect(ctx, meetingID, transcript)
	}
	if err != nil {
		return nil, err
	}

	if err := p.persistFinal(ctx, meetingID, final); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	progress.NewTracker(p.sink, 0).Complete(elapsed)
	logger.Infof("[Pipeline] summary for meeting %s completed in %.2fs", meetingID, elapsed.Seconds())
	return final, nil
}

// RegenerateFinal rebuilds only the final summary from the persisted chunk
// summaries, skipping segmentation and chunk extraction.
func (p *Pipeline) RegenerateFinal(ctx context.Context, meetingID string) (*summary.FinalSummary, error) {
	if !p.guard.tryAcquire(meetingID) {
		current, _ := p.guard.running()
		return nil, llm.ConfigError(nil, "another summarization is already running (meeting %s)", current)
	}
	defer p.guard.release()

	start := time.Now()
	logger.Infof("[Pipeline] regenerating final summary for meeting %s from saved chunks", meetingID)

	partials, err := p.artifacts.ReadChunkSummaries(meetingID)
	if err != nil {
		return nil, llm.WithStage(llm.FileError(err, "failed to read chunk summaries for meeting %s", meetingID), "chunk summary fetch")
	}
	if len(partials) == 0 {
		return nil, llm.WithStage(llm.FileError(nil, "no saved chunk summaries for meeting %s", meetingID), "chunk summary fetch")
	}
	logger.Infof("[Pipeline] found %d saved chunk summaries", len(partials))

	tracker := progress.NewTracker(p.sink, 1)
	tracker.Start(meetingID)

	final, err := p.synthesizeFromPartials(ctx, tracker, partials)
	if err != nil {
		return nil, err
	}

	if err := p.persistFinal(ctx, meetingID, final); err != nil {
		return nil, err
	}

	tracker.Complete(time.Since(start))
	return final, nil
}

// TestConnection issues one unconstrained round trip to the inference backend.
func (p *Pipeline) TestConnection(ctx context.Context) (string, error) {
	system, user := prompts.TestConnection()
	response, err := p.generate(ctx, system, user, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// summarizeLongTranscript runs the chunked path: segment, extract per chunk,
// mechanically merge, synthesize.
func (p *Pipeline) summarizeLongTranscript(ctx context.Context, meetingID, transcript string) (*summary.FinalSummary, error) {
	p.sink.Emit(progress.TopicStatus, "Transcript is long, splitting into chunks for processing...")

	chunks := textsplit.SplitIntoChunks(transcript, p.cfg.ChunkSize)
	logger.Infof("[Pipeline] split transcript into %d chunks", len(chunks))

	tracker := progress.NewTracker(p.sink, len(chunks)+1)
	tracker.Start(meetingID)

	partials := make([]summary.PartialSummary, 0, len(chunks))
	chunkTimes := make([]time.Duration, 0, len(chunks))
	var keyFacts summary.KeyFacts

	// Chunks are processed strictly in sequence: each prompt embeds the key
	// facts accumulated from every previous chunk.
	for i, chunk := range chunks {
		chunkStart := time.Now()
		stage := fmt.Sprintf("chunk %d of %d", i+1, len(chunks))
		tracker.Step(fmt.Sprintf("Summarizing chunk %d of %d", i+1, len(chunks)))

		partial, err := p.processChunk(ctx, chunk, &keyFacts)
		if err != nil {
			return nil, llm.WithStage(err, stage)
		}

		summary.MergeKeyFacts(&keyFacts, partial.KeyFacts)
		p.saveChunkArtifacts(meetingID, i, chunk, partial)

		partials = append(partials, *partial)
		chunkTimes = append(chunkTimes, time.Since(chunkStart))
	}

	tracker.LogChunkStats(chunkTimes)
	p.saveChunkDigest(meetingID, partials)

	return p.synthesizeFromPartials(ctx, tracker, partials)
}

// summarizeDirect is the short-transcript path: the final-synthesis call runs
// directly on the raw transcript.
func (p *Pipeline) summarizeDirect(ctx context.Context, meetingID, transcript string) (*summary.FinalSummary, error) {
	tracker := progress.NewTracker(p.sink, 1)
	tracker.Start(meetingID)
	tracker.Step("Summarizing transcript in a single pass")

	final, err := p.synthesizeFinal(ctx, transcript)
	if err != nil {
		return nil, llm.WithStage(err, "direct synthesis")
	}
	return final, nil
}

// processChunk extracts one structured partial summary. A parse failure here
// aborts the whole run.
func (p *Pipeline) processChunk(ctx context.Context, chunk string, keyFacts *summary.KeyFacts) (*summary.PartialSummary, error) {
	systemPrompt := prompts.ChunkSummarization(keyFacts)

	raw, err := p.generate(ctx, systemPrompt, chunk, llm.SchemaFor(&summary.PartialSummary{}))
	if err != nil {
		return nil, err
	}

	var partial summary.PartialSummary
	if err := json.Unmarshal([]byte(raw), &partial); err != nil {
		logger.Debugf("[Pipeline] unparsable chunk summary: %s", raw)
		return nil, llm.ParseError(err, "failed to parse chunk summary JSON")
	}
	return &partial, nil
}

// synthesizeFromPartials mechanically merges the partial summaries and runs
// the final synthesis call on the result.
func (p *Pipeline) synthesizeFromPartials(ctx context.Context, tracker *progress.Tracker, partials []summary.PartialSummary) (*summary.FinalSummary, error) {
	tracker.Step("Combining chunk summaries into final summary...")

	merged := summary.CombinePartials(partials)
	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, llm.WithStage(llm.SerializationError(err, "failed to serialize merged summary"), "merge")
	}

	final, err := p.synthesizeFinal(ctx, string(payload))
	if err != nil {
		return nil, llm.WithStage(err, "final synthesis")
	}
	return final, nil
}

// synthesizeFinal issues the final-summary model call on payload. This call
// owns semantic deduplication, the narrative and the title.
func (p *Pipeline) synthesizeFinal(ctx context.Context, payload string) (*summary.FinalSummary, error) {
	raw, err := p.generate(ctx, prompts.FinalSummary(), payload, llm.SchemaFor(&summary.FinalSummary{}))
	if err != nil {
		return nil, err
	}

	var final summary.FinalSummary
	if err := json.Unmarshal([]byte(raw), &final); err != nil {
		logger.Debugf("[Pipeline] unparsable final summary: %s", raw)
		return nil, llm.ParseError(err, "failed to parse final summary JSON")
	}
	return &final, nil
}

// generate performs one gateway call under the configured per-call deadline,
// retrying network and timeout failures up to MaxRetries. Parse failures are
// never retried.
func (p *Pipeline) generate(ctx context.Context, systemPrompt, userPrompt string, format *jsonschema.Schema) (string, error) {
	attempts := p.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutSeconds)*time.Second)
		text, err := p.generator.GenerateText(callCtx, systemPrompt, userPrompt, format)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err

		kind, ok := llm.KindOf(err)
		if !ok || (kind != llm.KindNetwork && kind != llm.KindTimeout) {
			return "", err
		}
		if attempt < attempts {
			logger.Warnf("[Pipeline] model call failed (attempt %d/%d), retrying: %v", attempt, attempts, err)
		}
	}
	return "", lastErr
}

// saveChunkArtifacts persists the raw chunk and its parsed summary. These are
// side artifacts: failures are logged and swallowed.
func (p *Pipeline) saveChunkArtifacts(meetingID string, index int, chunk string, partial *summary.PartialSummary) {
	if err := p.artifacts.WriteChunk(meetingID, index, chunk); err != nil {
		logger.Warnf("[Pipeline] failed to save chunk %d: %v", index+1, err)
	}

	data, err := json.MarshalIndent(partial, "", "  ")
	if err != nil {
		logger.Warnf("[Pipeline] failed to serialize chunk summary %d: %v", index+1, err)
		return
	}
	if err := p.artifacts.WriteChunkSummary(meetingID, index, data); err != nil {
		logger.Warnf("[Pipeline] failed to save chunk summary %d: %v", index+1, err)
	}
}

// saveChunkDigest writes the combined markdown digest of all chunk summaries,
// best-effort.
func (p *Pipeline) saveChunkDigest(meetingID string, partials []summary.PartialSummary) {
	contents := make([]string, len(partials))
	for i := range partials {
		data, err := json.MarshalIndent(&partials[i], "", "  ")
		if err != nil {
			logger.Warnf("[Pipeline] failed to serialize chunk summary %d for digest: %v", i+1, err)
			continue
		}
		contents[i] = string(data)
	}
	if err := p.artifacts.WriteAllChunkSummaries(meetingID, contents); err != nil {
		logger.Warnf("[Pipeline] failed to save chunk summary digest: %v", err)
	}
}

// persistFinal writes the final summary and records the derived title. Both
// writes are required; their failure aborts the run.
func (p *Pipeline) persistFinal(ctx context.Context, meetingID string, final *summary.FinalSummary) error {
	if err := p.artifacts.WriteFinalSummary(meetingID, final); err != nil {
		return llm.WithStage(llm.FileError(err, "failed to save final summary for meeting %s", meetingID), "final persistence")
	}
	if err := p.catalog.SetTitle(ctx, meetingID, final.Title.String()); err != nil {
		return llm.WithStage(llm.FileError(err, "failed to save meeting title for %s", meetingID), "final persistence")
	}
	return nil
}
