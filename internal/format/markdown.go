package format

import (
	"fmt"
	"io"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/inboxkit/intercom-export/internal/conversation"
)

const timeLayout = "2006-01-02 15:04:05"

// deviceAttrs is the fixed set of device/browser attributes surfaced in the
// Device Information section, in display order.
var deviceAttrs = []struct {
	key   string
	label string
}{
	{"browser", "Browser"},
	{"browser_version", "Browser Version"},
	{"browser_language", "Browser Language"},
	{"os", "Operating System"},
	{"android_app_name", "Android App"},
	{"android_app_version", "Android App Version"},
	{"android_device", "Android Device"},
	{"android_os_version", "Android OS Version"},
	{"ios_app_name", "iOS App"},
	{"ios_app_version", "iOS App Version"},
	{"ios_device", "iOS Device"},
	{"ios_os_version", "iOS OS Version"},
}

// Markdown renders conversations as a human/LLM-readable document.
type Markdown struct {
	convertHTML bool
}

// NewMarkdown is the registry factory for the markdown format.
func NewMarkdown(opts Options) Formatter {
	return &Markdown{convertHTML: opts.ConvertHTML}
}

func (m *Markdown) FormatHeader() string {
	return "# Intercom Support Conversations\n\n" +
		"This document contains customer support conversations exported from " +
		"Intercom, formatted for LLM analysis.\n\n"
}

func (m *Markdown) FormatFooter() string { return "" }

func (m *Markdown) FormatConversations(w io.Writer, convs []conversation.Conversation) error {
	return writeJoined(w, m, convs)
}

func (m *Markdown) FormatConversation(conv conversation.Conversation) (string, error) {
	var lines []string

	lines = append(lines,
		fmt.Sprintf("## Conversation %s\n", conv.ID),
		fmt.Sprintf("**Created:** %s\n", conv.CreatedAt.Format(timeLayout)),
	)

	context := map[string]any{
		"State": conv.State,
	}
	if len(conv.Tags) > 0 {
		context["Tags"] = strings.Join(conv.Tags, ", ")
	}
	for key, value := range conv.CustomAttributes {
		context[key] = value
	}

	lines = append(lines, "### Context\n")
	lines = append(lines, metadataLines(context)...)
	lines = append(lines, "")

	if device := m.deviceLines(conv); len(device) > 0 {
		lines = append(lines, "### Device Information\n")
		lines = append(lines, device...)
		lines = append(lines, "")
	}

	if len(conv.Messages) > 0 {
		lines = append(lines, "### Conversation\n")
		for _, msg := range conv.Messages {
			lines = append(lines, fmt.Sprintf("**%s - %s (%s):**",
				msg.CreatedAt.Format(timeLayout), msg.Author.Name, msg.Author.Type))
			if body := m.body(msg.Body); body != "" {
				lines = append(lines, body+"\n")
			}
		}
	}

	lines = append(lines, "---", "")
	return strings.Join(lines, "\n"), nil
}

// body cleans one message body, converting HTML to markdown when enabled
// (GET-fallback records carry HTML bodies; search results are plaintext).
func (m *Markdown) body(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}
	if m.convertHTML && strings.Contains(trimmed, "<") && strings.Contains(trimmed, ">") {
		if converted, err := htmltomarkdown.ConvertString(trimmed); err == nil {
			trimmed = strings.TrimSpace(converted)
		}
	}
	return trimmed
}

// deviceLines assembles the Device Information section from whichever of
// the fixed attribute set is present and non-empty. Attributes may live in
// custom_attributes or in the metadata catch-all.
func (m *Markdown) deviceLines(conv conversation.Conversation) []string {
	lookup := func(key string) any {
		if v, ok := conv.CustomAttributes[key]; ok {
			return v
		}
		return conv.Metadata[key]
	}

	info := map[string]any{}
	var order []string
	for _, attr := range deviceAttrs {
		if value := lookup(attr.key); truthy(value) {
			info[attr.label] = value
			order = append(order, attr.label)
		}
	}
	if loc, ok := lookup("location").(map[string]any); ok {
		var parts []string
		for _, key := range []string{"city", "region", "country"} {
			if s, ok := loc[key].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			info["Location"] = strings.Join(parts, ", ")
			order = append(order, "Location")
		}
	}

	lines := make([]string, 0, len(order))
	for _, label := range order {
		lines = append(lines, fmt.Sprintf("- **%s:** %v", label, info[label]))
	}
	return lines
}

// metadataLines renders key-value pairs as markdown bullets, keys sorted.
// Nested maps become sub-bullets, lists are comma-joined, nils are skipped.
func metadataLines(metadata map[string]any) []string {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var lines []string
	for _, key := range keys {
		value := metadata[key]
		if value == nil {
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			lines = append(lines, fmt.Sprintf("- **%s:**", key))
			subKeys := make([]string, 0, len(v))
			for subKey := range v {
				subKeys = append(subKeys, subKey)
			}
			sort.Strings(subKeys)
			for _, subKey := range subKeys {
				if v[subKey] != nil {
					lines = append(lines, fmt.Sprintf("  - %s: %v", subKey, v[subKey]))
				}
			}
		case []any:
			if len(v) > 0 {
				joined := make([]string, 0, len(v))
				for _, item := range v {
					joined = append(joined, fmt.Sprint(item))
				}
				lines = append(lines, fmt.Sprintf("- **%s:** %s", key, strings.Join(joined, ", ")))
			}
		case []string:
			if len(v) > 0 {
				lines = append(lines, fmt.Sprintf("- **%s:** %s", key, strings.Join(v, ", ")))
			}
		default:
			lines = append(lines, fmt.Sprintf("- **%s:** %v", key, v))
		}
	}
	return lines
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return true
	}
}
