package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxkit/intercom-export/internal/conversation"
)

func sampleConversation() conversation.Conversation {
	created := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	return conversation.Conversation{
		ID:        "123",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
		Title:     "Billing question",
		State:     "closed",
		Tags:      []string{"billing", "refund"},
		CustomAttributes: map[string]any{
			"plan": "pro",
		},
		Messages: []conversation.Message{
			{
				ID:        "m0",
				Body:      "Hi, I was charged twice",
				Author:    conversation.Author{ID: "u1", Name: "Ada", Type: conversation.AuthorUser},
				CreatedAt: created,
				Type:      conversation.PartComment,
			},
			{
				ID:        "m1",
				Body:      "Refund issued",
				Author:    conversation.Author{ID: "a1", Name: "Sam", Type: conversation.AuthorAdmin},
				CreatedAt: created.Add(2 * time.Minute),
				Type:      conversation.PartComment,
			},
		},
		Metadata: map[string]any{
			"assignee": map[string]any{"name": "Sam", "type": "admin"},
			"contact":  map[string]any{"name": "Ada", "email": "ada@example.com"},
		},
	}
}

type nopFormatter struct{ Markdown }

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"markdown", "MARKDOWN", "Markdown"} {
		f, err := New(name, Options{})
		require.NoError(t, err, name)
		assert.IsType(t, &Markdown{}, f)
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	_, err := New("yaml", Options{})
	require.Error(t, err)

	var unknown *UnknownFormatError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "yaml", unknown.Name)
	assert.Contains(t, unknown.Available, "markdown")
	assert.Contains(t, err.Error(), "csv")
}

func TestRegisterRejectsNilFactory(t *testing.T) {
	assert.Error(t, Register("broken", nil))
	_, err := New("broken", Options{})
	assert.Error(t, err)
}

func TestRegisterReplacesExisting(t *testing.T) {
	require.NoError(t, Register("custom", func(Options) Formatter { return &Markdown{} }))
	require.NoError(t, Register("CUSTOM", func(Options) Formatter { return &nopFormatter{} }))

	f, err := New("custom", Options{})
	require.NoError(t, err)
	assert.IsType(t, &nopFormatter{}, f)
}

func TestAvailableIsSorted(t *testing.T) {
	names := Available()
	assert.Contains(t, names, "markdown")
	assert.Contains(t, names, "json")
	assert.Contains(t, names, "csv")
	assert.IsIncreasing(t, names)
}
