package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxkit/intercom-export/internal/cache"
	"github.com/inboxkit/intercom-export/internal/config"
)

type fakeFetcher struct {
	records    map[string]map[string]any
	batchCalls [][]string
	oneCalls   []string
	err        error
}

func (f *fakeFetcher) FetchBatch(_ context.Context, ids []string) ([]map[string]any, error) {
	f.batchCalls = append(f.batchCalls, ids)
	if f.err != nil {
		return nil, f.err
	}
	var out []map[string]any
	for _, id := range ids {
		if record, ok := f.records[id]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeFetcher) FetchOne(_ context.Context, id string) (map[string]any, error) {
	f.oneCalls = append(f.oneCalls, id)
	if f.err != nil {
		return nil, f.err
	}
	record, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("no conversation %s", id)
	}
	return record, nil
}

func rawRecord(id string) map[string]any {
	return map[string]any{
		"id":         id,
		"created_at": float64(1672567200),
		"updated_at": float64(1672567200),
		"state":      "closed",
		"conversation_message": map[string]any{
			"id":         id + "-m0",
			"body":       "Hello from " + id,
			"created_at": float64(1672567200),
			"author":     map[string]any{"id": "u1", "name": "Ada", "type": "user"},
		},
	}
}

func testService(t *testing.T, client Fetcher, withCache bool) (*Service, *cache.Store, config.ExportConfig) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.ExportConfig{
		Format:          "markdown",
		IncludeHeaders:  true,
		JSONIndent:      2,
		TimeOffsetHours: 2,
	}
	var store *cache.Store
	if withCache {
		cfg.CacheFile = filepath.Join(t.TempDir(), "raw.json")
		store = cache.NewStore(log, cfg.CacheFile)
	}
	return NewService(log, cfg, client, store), store, cfg
}

func TestRunWritesOutputFile(t *testing.T) {
	client := &fakeFetcher{records: map[string]map[string]any{
		"1": rawRecord("1"),
		"2": rawRecord("2"),
	}}
	svc, _, _ := testService(t, client, false)

	out := filepath.Join(t.TempDir(), "export", "conversations.md")
	require.NoError(t, svc.Run(context.Background(), []string{"1", "2"}, "", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "# Intercom Support Conversations")
	assert.Contains(t, doc, "## Conversation 1")
	assert.Contains(t, doc, "## Conversation 2")
	assert.Contains(t, doc, "Hello from 1")
}

func TestRunRequiresIDs(t *testing.T) {
	svc, _, _ := testService(t, &fakeFetcher{}, false)
	assert.Error(t, svc.Run(context.Background(), nil, "", ""))
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	client := &fakeFetcher{records: map[string]map[string]any{"1": rawRecord("1")}}
	svc, _, _ := testService(t, client, false)

	out := filepath.Join(t.TempDir(), "out.xyz")
	assert.Error(t, svc.Run(context.Background(), []string{"1"}, "xyz", out))
}

func TestRunSkipsUnparseableRecords(t *testing.T) {
	client := &fakeFetcher{records: map[string]map[string]any{
		"1":   rawRecord("1"),
		"bad": {"id": "bad"}, // missing timestamps
	}}
	svc, _, _ := testService(t, client, false)

	out := filepath.Join(t.TempDir(), "conversations.md")
	require.NoError(t, svc.Run(context.Background(), []string{"1", "bad"}, "", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Conversation 1")
	assert.NotContains(t, string(data), "## Conversation bad")
}

func TestRunFetchesOnlyUncachedIDs(t *testing.T) {
	client := &fakeFetcher{records: map[string]map[string]any{
		"2": rawRecord("2"),
	}}
	svc, store, _ := testService(t, client, true)
	require.NoError(t, store.Append(rawRecord("1")))

	out := filepath.Join(t.TempDir(), "conversations.md")
	require.NoError(t, svc.Run(context.Background(), []string{"1", "2"}, "", out))

	require.Len(t, client.batchCalls, 1)
	assert.Equal(t, []string{"2"}, client.batchCalls[0])

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Conversation 1")
	assert.Contains(t, string(data), "## Conversation 2")
}

func TestRunCachesFetchedRecords(t *testing.T) {
	client := &fakeFetcher{records: map[string]map[string]any{"1": rawRecord("1")}}
	svc, store, _ := testService(t, client, true)

	out := filepath.Join(t.TempDir(), "conversations.md")
	require.NoError(t, svc.Run(context.Background(), []string{"1"}, "", out))

	_, ok, err := store.Find("1")
	require.NoError(t, err)
	assert.True(t, ok)

	// a second run is served entirely from the cache
	require.NoError(t, svc.Run(context.Background(), []string{"1"}, "", out))
	assert.Len(t, client.batchCalls, 1)
}

func TestRunSkipsFetchWhenAllCached(t *testing.T) {
	client := &fakeFetcher{}
	svc, store, _ := testService(t, client, true)
	require.NoError(t, store.Append(rawRecord("1")))

	out := filepath.Join(t.TempDir(), "conversations.md")
	require.NoError(t, svc.Run(context.Background(), []string{"1"}, "", out))
	assert.Empty(t, client.batchCalls)
}

func TestShowOnePrefersCache(t *testing.T) {
	client := &fakeFetcher{}
	svc, store, _ := testService(t, client, true)
	require.NoError(t, store.Append(rawRecord("7")))

	rendered, err := svc.ShowOne(context.Background(), "7")
	require.NoError(t, err)
	assert.Contains(t, rendered, "## Conversation 7")
	assert.Empty(t, client.oneCalls)
}

func TestShowOneFetchesAndCaches(t *testing.T) {
	client := &fakeFetcher{records: map[string]map[string]any{"7": rawRecord("7")}}
	svc, store, _ := testService(t, client, true)

	rendered, err := svc.ShowOne(context.Background(), "7")
	require.NoError(t, err)
	assert.Contains(t, rendered, "## Conversation 7")
	assert.Equal(t, []string{"7"}, client.oneCalls)

	_, ok, err := store.Find("7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "conversations.md", DefaultOutputPath("markdown"))
	assert.Equal(t, "conversations.json", DefaultOutputPath("json"))
	assert.Equal(t, "conversations.csv", DefaultOutputPath("csv"))
}

func TestReadIDsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n\n  2  \n3\n"), 0o644))

	ids, err := ReadIDsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	_, err = ReadIDsFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
