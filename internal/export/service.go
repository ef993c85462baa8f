// Package export wires the fetch client, raw-record cache, normalizer, and
// formatters into complete export runs.
package export

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/inboxkit/intercom-export/internal/cache"
	"github.com/inboxkit/intercom-export/internal/config"
	"github.com/inboxkit/intercom-export/internal/conversation"
	"github.com/inboxkit/intercom-export/internal/format"
)

// Fetcher is the client surface the orchestrator needs.
type Fetcher interface {
	FetchBatch(ctx context.Context, ids []string) ([]map[string]any, error)
	FetchOne(ctx context.Context, id string) (map[string]any, error)
}

// Service runs exports: resolve ids, consult the cache, fetch what is
// missing, normalize, and render to the output file.
type Service struct {
	cfg        config.ExportConfig
	client     Fetcher
	store      *cache.Store
	normalizer *conversation.Normalizer
	logger     *slog.Logger
}

// NewService builds the orchestrator. The store may be nil to disable
// caching entirely.
func NewService(log *slog.Logger, cfg config.ExportConfig, client Fetcher, store *cache.Store) *Service {
	return &Service{
		cfg:        cfg,
		client:     client,
		store:      store,
		normalizer: conversation.NewNormalizer(log, cfg.TimeOffset()),
		logger:     log.With(slog.String("service", "export")),
	}
}

// Run exports the given conversation ids. Empty formatName and outputPath
// fall back to the configured format and conversations.<ext>.
func (s *Service) Run(ctx context.Context, ids []string, formatName, outputPath string) error {
	if len(ids) == 0 {
		return fmt.Errorf("no conversation ids provided")
	}
	if formatName == "" {
		formatName = s.cfg.Format
	}
	if outputPath == "" {
		outputPath = DefaultOutputPath(formatName)
	}

	raw, err := s.collect(ctx, ids)
	if err != nil {
		return err
	}

	convs := make([]conversation.Conversation, 0, len(raw))
	for _, record := range raw {
		conv, err := s.normalizer.Conversation(record)
		if err != nil {
			s.logger.Warn("skipping conversation", slog.Any("error", err))
			continue
		}
		convs = append(convs, conv)
	}

	formatter, err := format.New(formatName, s.formatterOptions())
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			s.logger.Warn("close output file failed", slog.Any("error", err))
		}
	}()

	writer := bufio.NewWriter(out)
	if err := formatter.FormatConversations(writer, convs); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	s.logger.Info("export complete",
		slog.Int("conversations", len(convs)),
		slog.String("output", outputPath))
	return nil
}

// ShowOne returns the markdown rendering of a single conversation,
// cache-first with a network fallback (the fetched record is cached).
func (s *Service) ShowOne(ctx context.Context, id string) (string, error) {
	var record map[string]any
	if s.store != nil {
		cached, ok, err := s.store.Find(id)
		if err != nil {
			return "", err
		}
		if ok {
			record = cached
		}
	}
	if record == nil {
		fetched, err := s.client.FetchOne(ctx, id)
		if err != nil {
			return "", err
		}
		record = fetched
		s.cacheRecord(record)
	}

	conv, err := s.normalizer.Conversation(record)
	if err != nil {
		return "", err
	}
	formatter, err := format.New("markdown", s.formatterOptions())
	if err != nil {
		return "", err
	}
	return format.Render(formatter, []conversation.Conversation{conv})
}

// collect returns raw records for ids: cached entries first, then a single
// batched fetch for the rest. Fetched records are appended to the cache as
// they arrive, so partial progress survives a later failure.
func (s *Service) collect(ctx context.Context, ids []string) ([]map[string]any, error) {
	var records []map[string]any
	missing := ids

	if s.store != nil {
		cached, err := s.store.Load()
		if err != nil {
			return nil, err
		}
		byID := make(map[string]map[string]any, len(cached))
		for _, record := range cached {
			if id := recordID(record); id != "" {
				byID[id] = record
			}
		}
		missing = missing[:0:0]
		for _, id := range ids {
			if record, ok := byID[id]; ok {
				records = append(records, record)
			} else {
				missing = append(missing, id)
			}
		}
		if len(records) > 0 {
			s.logger.Info("loaded conversations from cache", slog.Int("count", len(records)))
		}
	}

	if len(missing) == 0 {
		return records, nil
	}

	s.logger.Info("fetching conversations", slog.Int("count", len(missing)))
	fetched, err := s.client.FetchBatch(ctx, missing)
	for _, record := range fetched {
		s.cacheRecord(record)
		records = append(records, record)
	}
	if err != nil {
		return records, err
	}
	return records, nil
}

func (s *Service) cacheRecord(record map[string]any) {
	if s.store == nil {
		return
	}
	if err := s.store.Append(record); err != nil {
		s.logger.Warn("cache append failed", slog.Any("error", err))
	}
}

func (s *Service) formatterOptions() format.Options {
	return format.Options{
		IncludeHeaders:  s.cfg.IncludeHeaders,
		FlattenMessages: s.cfg.FlattenMessages,
		Indent:          s.cfg.JSONIndent,
		ConvertHTML:     true,
	}
}

func recordID(record map[string]any) string {
	switch v := record["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// DefaultOutputPath names the output file for a format: conversations.md,
// conversations.json, conversations.csv.
func DefaultOutputPath(formatName string) string {
	ext := strings.ToLower(formatName)
	if ext == "markdown" {
		ext = "md"
	}
	return "conversations." + ext
}

// ReadIDsFile loads conversation ids from a text file, one id per line,
// skipping blanks.
func ReadIDsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
