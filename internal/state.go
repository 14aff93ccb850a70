package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"time"
)

// StateStore is the durable record of processed videos. The orchestrator is
// its only writer; a run owns it exclusively.
type StateStore interface {
	Load(ctx context.Context) error
	IsProcessed(videoID string) bool
	Lookup(videoID string) (ProcessedRecord, bool)
	MarkProcessed(ctx context.Context, rec ProcessedRecord) error
	Flush(ctx context.Context) error
	Purge(ctx context.Context, videoIDs ...string) (int, error)
	Records() []ProcessedRecord
	Close() error
}

// MemoryStore keeps records in memory only. It backs dry runs and tests and
// is the cache underneath the file-backed stores.
type MemoryStore struct {
	records map[string]ProcessedRecord
}

func NewMemoryStore(records ...ProcessedRecord) *MemoryStore {
	m := &MemoryStore{records: make(map[string]ProcessedRecord, len(records))}
	for _, r := range records {
		m.records[r.VideoID] = r
	}
	return m
}

func (m *MemoryStore) Load(context.Context) error { return nil }

func (m *MemoryStore) IsProcessed(videoID string) bool {
	rec, ok := m.records[videoID]
	return ok && rec.Done()
}

func (m *MemoryStore) Lookup(videoID string) (ProcessedRecord, bool) {
	rec, ok := m.records[videoID]
	return rec, ok
}

func (m *MemoryStore) MarkProcessed(_ context.Context, rec ProcessedRecord) error {
	if rec.VideoID == "" {
		return fmt.Errorf("record without video id")
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	m.records[rec.VideoID] = rec
	return nil
}

func (m *MemoryStore) Flush(context.Context) error { return nil }

func (m *MemoryStore) Purge(_ context.Context, videoIDs ...string) (int, error) {
	n := 0
	for _, id := range videoIDs {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Records returns all records, most recent first.
func (m *MemoryStore) Records() []ProcessedRecord {
	out := make([]ProcessedRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].VideoID < out[j].VideoID
		}
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out
}

func (m *MemoryStore) Close() error { return nil }

const stateVersion = 1

// stateDocument is the on-disk layout of JSONStore. The legacy fields are
// read for migration from the original script's state file and never written.
type stateDocument struct {
	Version             int                        `json:"version"`
	Records             map[string]ProcessedRecord `json:"records"`
	ProcessedVideoIDs   []string                   `json:"processed_video_ids,omitempty"`
	ProcessedTimestamps map[string]float64         `json:"processed_timestamps,omitempty"`
	VideoErrors         map[string]string          `json:"video_errors,omitempty"`
}

// JSONStore persists records as one JSON document, rewritten atomically after
// every mutation.
type JSONStore struct {
	*MemoryStore
	path       string
	logger     *slog.Logger
	quarantine bool
}

func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStore{MemoryStore: NewMemoryStore(), path: path, logger: logger}
}

// QuarantineCorrupt makes Load move an unreadable file aside. Only a holder
// of the run lock may enable it.
func (s *JSONStore) QuarantineCorrupt() { s.quarantine = true }

// Load reads the state file. A missing or corrupt file is an empty state. A
// corrupt file is left in place unless QuarantineCorrupt was called.
func (s *JSONStore) Load(context.Context) error {
	s.records = make(map[string]ProcessedRecord)

	var doc stateDocument
	err := readJSON(s.path, &doc)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Debug("state file not found, starting empty", slog.String("path", s.path))
		return nil
	case err != nil && !s.quarantine:
		s.logger.Warn("state file unreadable, starting empty",
			slog.String("path", s.path), slog.Any("error", err))
		return nil
	case err != nil:
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			s.logger.Warn("state file unreadable, starting empty",
				slog.String("path", s.path), slog.Any("error", err), slog.Any("backup_error", renameErr))
			return nil
		}
		s.logger.Warn("state file unreadable, moved aside and starting empty",
			slog.String("path", s.path), slog.String("backup", backup), slog.Any("error", err))
		return nil
	}

	for id, rec := range doc.Records {
		rec.VideoID = id
		s.records[id] = rec
	}
	migrated := s.migrateLegacy(doc)
	if migrated > 0 {
		s.logger.Info("migrated legacy state entries", slog.Int("count", migrated))
	}
	return nil
}

func (s *JSONStore) migrateLegacy(doc stateDocument) int {
	n := 0
	for id, ts := range doc.ProcessedTimestamps {
		if _, ok := s.records[id]; ok {
			continue
		}
		sec := int64(ts)
		s.records[id] = ProcessedRecord{
			VideoID:     id,
			Outcome:     OutcomeSummarized,
			ProcessedAt: time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC(),
		}
		n++
	}
	// Entries without a timestamp are dated at load time.
	for _, id := range doc.ProcessedVideoIDs {
		if _, ok := s.records[id]; ok || id == "" {
			continue
		}
		s.records[id] = ProcessedRecord{
			VideoID:     id,
			Outcome:     OutcomeSummarized,
			ProcessedAt: time.Now().UTC(),
		}
		n++
	}
	for id, reason := range doc.VideoErrors {
		if _, ok := s.records[id]; ok {
			continue
		}
		s.records[id] = ProcessedRecord{
			VideoID:     id,
			Outcome:     OutcomeNoTranscript,
			Reason:      reason,
			ProcessedAt: time.Now().UTC(),
		}
		n++
	}
	return n
}

func (s *JSONStore) MarkProcessed(ctx context.Context, rec ProcessedRecord) error {
	if err := s.MemoryStore.MarkProcessed(ctx, rec); err != nil {
		return err
	}
	return s.Flush(ctx)
}

func (s *JSONStore) Purge(ctx context.Context, videoIDs ...string) (int, error) {
	n, _ := s.MemoryStore.Purge(ctx, videoIDs...)
	if n == 0 {
		return 0, nil
	}
	return n, s.Flush(ctx)
}

func (s *JSONStore) Flush(context.Context) error {
	doc := stateDocument{Version: stateVersion, Records: s.records}
	if err := writeJSON(s.path, doc); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }
