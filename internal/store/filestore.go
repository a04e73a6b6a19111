package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nbeier/meetscribe/internal/summary"
)

// FileStore is the on-disk meeting library. Each meeting lives under
// uploads/<id>/ with its transcript, chunk artifacts and final summary.
type FileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

func (s *FileStore) MeetingDir(meetingID string) string {
	return filepath.Join(s.dataDir, "uploads", meetingID)
}

func (s *FileStore) chunksDir(meetingID string) string {
	return filepath.Join(s.MeetingDir(meetingID), "chunks")
}

// ReadTranscript returns the plain transcript text for a meeting.
func (s *FileStore) ReadTranscript(meetingID string) (string, error) {
	path := filepath.Join(s.MeetingDir(meetingID), meetingID+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}

// ImportTranscript creates the meeting directory and writes the transcript.
func (s *FileStore) ImportTranscript(meetingID, content string) error {
	dir := s.MeetingDir(meetingID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create meeting directory: %w", err)
	}
	path := filepath.Join(dir, meetingID+".txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// WriteChunk persists the raw text of one transcript chunk.
func (s *FileStore) WriteChunk(meetingID string, index int, content string) error {
	dir := s.chunksDir(meetingID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create chunks directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("chunk_%03d.txt", index+1))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write chunk %d: %w", index+1, err)
	}
	return nil
}

// WriteChunkSummary persists the parsed partial summary of one chunk as JSON.
func (s *FileStore) WriteChunkSummary(meetingID string, index int, data []byte) error {
	dir := s.chunksDir(meetingID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create chunks directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("chunk_%03d_summary.json", index+1))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chunk summary %d: %w", index+1, err)
	}
	return nil
}

// WriteAllChunkSummaries writes a single readable markdown digest of every
// chunk summary.
func (s *FileStore) WriteAllChunkSummaries(meetingID string, summaries []string) error {
	dir := s.chunksDir(meetingID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create chunks directory: %w", err)
	}

	parts := make([]string, len(summaries))
	for i, content := range summaries {
		parts[i] = fmt.Sprintf("# Chunk %d Summary\n\n%s", i+1, content)
	}

	path := filepath.Join(dir, "all_chunk_summaries.md")
	if err := os.WriteFile(path, []byte(strings.Join(parts, "\n\n---\n\n")), 0644); err != nil {
		return fmt.Errorf("failed to write chunk summary digest: %w", err)
	}
	return nil
}

// ReadChunkSummaries loads the persisted per-chunk partial summaries in chunk
// order, for rebuilding the final summary without re-processing chunks.
func (s *FileStore) ReadChunkSummaries(meetingID string) ([]summary.PartialSummary, error) {
	dir := s.chunksDir(meetingID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "chunk_") && strings.HasSuffix(name, "_summary.json") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	partials := make([]summary.PartialSummary, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk summary %s: %w", name, err)
		}
		var partial summary.PartialSummary
		if err := json.Unmarshal(data, &partial); err != nil {
			return nil, fmt.Errorf("failed to parse chunk summary %s: %w", name, err)
		}
		partials = append(partials, partial)
	}
	return partials, nil
}

// WriteFinalSummary persists the final summary both as JSON and as rendered
// markdown.
func (s *FileStore) WriteFinalSummary(meetingID string, final *summary.FinalSummary) error {
	dir := s.MeetingDir(meetingID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create meeting directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "summary.md"), []byte(final.Markdown()), 0644); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}

	data, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write summary JSON: %w", err)
	}
	return nil
}

// ReadFinalSummary loads a previously persisted final summary.
func (s *FileStore) ReadFinalSummary(meetingID string) (*summary.FinalSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.MeetingDir(meetingID), "summary.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read summary file: %w", err)
	}
	var final summary.FinalSummary
	if err := json.Unmarshal(data, &final); err != nil {
		return nil, fmt.Errorf("failed to parse summary JSON: %w", err)
	}
	return &final, nil
}

// HasFinalSummary reports whether a final summary has been written.
func (s *FileStore) HasFinalSummary(meetingID string) bool {
	_, err := os.Stat(filepath.Join(s.MeetingDir(meetingID), "summary.json"))
	return err == nil
}

// RemoveChunks deletes the chunk artifacts of a meeting. The transcript and
// final summary are left untouched.
func (s *FileStore) RemoveChunks(meetingID string) error {
	if err := os.RemoveAll(s.chunksDir(meetingID)); err != nil {
		return fmt.Errorf("failed to remove chunk artifacts: %w", err)
	}
	return nil
}
