package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/inboxkit/intercom-export/internal/conversation"
)

// JSON renders conversations as a JSON array of their canonical
// representation, timestamps as ISO-8601 strings.
type JSON struct {
	indent int
}

// NewJSON is the registry factory for the json format. Indent 0 produces
// compact output.
func NewJSON(opts Options) Formatter {
	return &JSON{indent: opts.Indent}
}

func (j *JSON) FormatHeader() string { return "[" }

func (j *JSON) FormatFooter() string { return "\n]" }

func (j *JSON) FormatConversation(conv conversation.Conversation) (string, error) {
	if j.indent <= 0 {
		data, err := json.Marshal(conv)
		return string(data), err
	}
	data, err := json.MarshalIndent(conv, "", strings.Repeat(" ", j.indent))
	return string(data), err
}

// FormatConversations streams the array element by element, emitting valid
// separators, so large exports never hold the whole document in memory.
func (j *JSON) FormatConversations(w io.Writer, convs []conversation.Conversation) error {
	if _, err := io.WriteString(w, j.FormatHeader()); err != nil {
		return err
	}
	for i, conv := range convs {
		sep := "\n"
		if i > 0 {
			sep = ",\n"
		}
		rendered, err := j.FormatConversation(conv)
		if err != nil {
			return fmt.Errorf("format conversation %s: %w", conv.ID, err)
		}
		if _, err := io.WriteString(w, sep+rendered); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, j.FormatFooter())
	return err
}
