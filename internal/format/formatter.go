// Package format renders canonical conversations into output documents
// (markdown, JSON, CSV) through a pluggable formatter registry.
package format

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/inboxkit/intercom-export/internal/conversation"
)

// Formatter renders a sequence of conversations into one document:
// header, one rendering per conversation, footer.
type Formatter interface {
	FormatHeader() string
	FormatConversation(conv conversation.Conversation) (string, error)
	FormatFooter() string

	// FormatConversations writes the complete document to w.
	FormatConversations(w io.Writer, convs []conversation.Conversation) error
}

// Options tunes formatter construction. Fields irrelevant to a given
// format are ignored by its factory.
type Options struct {
	// IncludeHeaders emits the CSV header row.
	IncludeHeaders bool
	// FlattenMessages switches CSV to one row per message.
	FlattenMessages bool
	// Delimiter is the CSV field separator; 0 means comma.
	Delimiter rune
	// Indent is the JSON indent width; 0 means compact.
	Indent int
	// ConvertHTML rewrites HTML message bodies to markdown.
	ConvertHTML bool
}

// Factory constructs a Formatter from options.
type Factory func(Options) Formatter

// UnknownFormatError reports a format name with no registered factory.
type UnknownFormatError struct {
	Name      string
	Available []string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown format: %s (available: %s)",
		e.Name, strings.Join(e.Available, ", "))
}

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func init() {
	_ = Register("markdown", NewMarkdown)
	_ = Register("json", NewJSON)
	_ = Register("csv", NewCSV)
}

// Register binds a factory to a case-insensitive format name, replacing any
// existing binding. A nil factory is rejected.
func Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("format %q: factory must not be nil", name)
	}
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(name)] = factory
	return nil
}

// New constructs the formatter registered under name (case-insensitive).
func New(name string, opts Options) (Formatter, error) {
	mu.RLock()
	factory, ok := factories[strings.ToLower(name)]
	mu.RUnlock()
	if !ok {
		return nil, &UnknownFormatError{Name: name, Available: Available()}
	}
	return factory(opts), nil
}

// Available returns the registered format names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render returns the complete document as a string.
func Render(f Formatter, convs []conversation.Conversation) (string, error) {
	var sb strings.Builder
	if err := f.FormatConversations(&sb, convs); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// writeJoined is the shared driver: header, conversations, footer, joined
// by single newlines.
func writeJoined(w io.Writer, f Formatter, convs []conversation.Conversation) error {
	parts := make([]string, 0, len(convs)+2)
	parts = append(parts, f.FormatHeader())
	for _, conv := range convs {
		rendered, err := f.FormatConversation(conv)
		if err != nil {
			return fmt.Errorf("format conversation %s: %w", conv.ID, err)
		}
		parts = append(parts, rendered)
	}
	parts = append(parts, f.FormatFooter())
	_, err := io.WriteString(w, strings.Join(parts, "\n"))
	return err
}
