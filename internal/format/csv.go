package format

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/inboxkit/intercom-export/internal/conversation"
)

var (
	csvSummaryColumns = []string{
		"id", "created_at", "updated_at", "state", "subject",
		"assignee_name", "assignee_type", "contact_name", "contact_email",
		"message_count", "first_message_text", "last_message_text",
	}
	csvFlattenedColumns = []string{
		"conversation_id", "created_at", "updated_at", "state",
		"message_id", "message_type", "message_author", "message_text",
		"message_created_at",
	}
)

// CSV renders conversations as delimiter-separated rows: one summary row
// per conversation, or one row per message in flattened mode.
type CSV struct {
	includeHeaders bool
	flatten        bool
	delimiter      rune
}

// NewCSV is the registry factory for the csv format.
func NewCSV(opts Options) Formatter {
	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSV{
		includeHeaders: opts.IncludeHeaders,
		flatten:        opts.FlattenMessages,
		delimiter:      delimiter,
	}
}

func (c *CSV) columns() []string {
	if c.flatten {
		return csvFlattenedColumns
	}
	return csvSummaryColumns
}

func (c *CSV) FormatHeader() string {
	if !c.includeHeaders {
		return ""
	}
	return c.rows([][]string{c.columns()})
}

func (c *CSV) FormatFooter() string { return "" }

func (c *CSV) FormatConversations(w io.Writer, convs []conversation.Conversation) error {
	return writeJoined(w, c, convs)
}

func (c *CSV) FormatConversation(conv conversation.Conversation) (string, error) {
	if c.flatten {
		records := make([][]string, 0, len(conv.Messages))
		for _, msg := range conv.Messages {
			records = append(records, []string{
				conv.ID,
				conv.CreatedAt.Format(timeLayout),
				conv.UpdatedAt.Format(timeLayout),
				conv.State,
				msg.ID,
				msg.Type,
				msg.Author.Name,
				flattenText(msg.Body),
				msg.CreatedAt.Format(timeLayout),
			})
		}
		return c.rows(records), nil
	}

	subject := conv.Title
	if subject == "" {
		subject = "No subject"
	}
	assigneeName, assigneeType := partyFields(conv.Metadata, "assignee", "Unassigned", "None")
	contactName, contactEmail := partyFields(conv.Metadata, "contact", "Unknown", "No email")

	first, last := "", ""
	if len(conv.Messages) > 0 {
		first = flattenText(conv.Messages[0].Body)
		last = flattenText(conv.Messages[len(conv.Messages)-1].Body)
	}

	return c.rows([][]string{{
		conv.ID,
		conv.CreatedAt.Format(timeLayout),
		conv.UpdatedAt.Format(timeLayout),
		conv.State,
		subject,
		assigneeName,
		assigneeType,
		contactName,
		contactEmail,
		strconv.Itoa(len(conv.Messages)),
		first,
		last,
	}}), nil
}

// rows encodes records with the configured delimiter, without a trailing
// newline (the shared driver joins sections with newlines).
func (c *CSV) rows(records [][]string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Comma = c.delimiter
	_ = w.WriteAll(records)
	w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}

// partyFields extracts name and a second field (type or email) from an
// assignee/contact object preserved in the metadata catch-all.
func partyFields(metadata map[string]any, key, nameDefault, otherDefault string) (string, string) {
	party, ok := metadata[key].(map[string]any)
	if !ok {
		return nameDefault, otherDefault
	}
	name, other := nameDefault, otherDefault
	if s, ok := party["name"].(string); ok && s != "" {
		name = s
	}
	otherKey := "type"
	if key == "contact" {
		otherKey = "email"
	}
	if s, ok := party[otherKey].(string); ok && s != "" {
		other = s
	}
	return name, other
}

func flattenText(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}
