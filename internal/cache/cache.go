// Package cache persists fetched raw conversation records as a flat JSON
// array file, so interrupted exports resume without refetching.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// Store reads and appends raw records in a single JSON array file. A
// missing or corrupt file is treated as empty rather than fatal.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewStore builds a store over the file at path.
func NewStore(log *slog.Logger, path string) *Store {
	return &Store{
		path:   path,
		logger: log.With(slog.String("component", "cache")),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns every cached raw record.
func (s *Store) Load() ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("cache file is not a JSON array, treating as empty",
			slog.String("path", s.path), slog.Any("error", err))
		return nil, nil
	}
	return records, nil
}

// Find returns the cached record whose id matches, comparing ids as
// strings to tolerate numeric vs string typing.
func (s *Store) Find(id string) (map[string]any, bool, error) {
	records, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	for _, record := range records {
		if idString(record["id"]) == id {
			return record, true, nil
		}
	}
	return nil, false, nil
}

// Append adds a record and rewrites the file. The write goes through a
// temp file and rename so a crash never truncates existing cache entries.
func (s *Store) Append(record map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

func idString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
