package conversation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"
)

// DefaultTimeOffset is the fixed shift applied to every API timestamp.
// The upstream export has always shifted timestamps by two hours; keep it
// configurable via NewNormalizer rather than baked in.
const DefaultTimeOffset = 2 * time.Hour

// Fields lifted into the model; everything else lands in Metadata.
var (
	messageFields = map[string]bool{
		"id": true, "body": true, "author": true, "created_at": true, "part_type": true,
	}
	conversationFields = map[string]bool{
		"id": true, "created_at": true, "updated_at": true, "title": true,
		"state": true, "conversation_message": true, "conversation_parts": true,
		"custom_attributes": true, "tags": true, "source": true,
	}
)

// Normalizer converts raw API records into canonical Conversations.
type Normalizer struct {
	offset time.Duration
	logger *slog.Logger
}

// NewNormalizer builds a Normalizer applying the given timestamp offset.
func NewNormalizer(log *slog.Logger, offset time.Duration) *Normalizer {
	return &Normalizer{
		offset: offset,
		logger: log.With(slog.String("component", "normalizer")),
	}
}

// Conversation converts one raw API record. Missing id, created_at, or
// updated_at is a hard failure; malformed individual conversation parts are
// logged and skipped so the rest of the record still converts.
func (n *Normalizer) Conversation(raw map[string]any) (Conversation, error) {
	id, ok := stringValue(raw["id"])
	if !ok {
		return Conversation{}, fmt.Errorf("conversation record has no id")
	}
	createdAt, err := n.timestamp(raw, "created_at")
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	updatedAt, err := n.timestamp(raw, "updated_at")
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}

	var messages []Message
	if initial, ok := raw["conversation_message"].(map[string]any); ok {
		msg, err := n.message(initial, PartComment)
		if err != nil {
			return Conversation{}, fmt.Errorf("conversation %s: initial message: %w", id, err)
		}
		messages = append(messages, msg)
	}
	for _, part := range conversationParts(raw) {
		partMap, ok := part.(map[string]any)
		if !ok {
			continue
		}
		if body, _ := stringValue(partMap["body"]); body == "" {
			continue
		}
		partType, _ := stringValue(partMap["part_type"])
		msg, err := n.message(partMap, partType)
		if err != nil {
			n.logger.Warn("skipping invalid conversation part",
				slog.String("conversation_id", id), slog.Any("error", err))
			continue
		}
		messages = append(messages, msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	title, _ := stringValue(raw["title"])
	state, ok := stringValue(raw["state"])
	if !ok || state == "" {
		state = "open"
	}

	return Conversation{
		ID:               id,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		Title:            title,
		State:            state,
		Messages:         messages,
		CustomAttributes: mapValue(raw["custom_attributes"]),
		Tags:             flattenTags(raw["tags"]),
		Source:           mapValue(raw["source"]),
		Metadata:         leftover(raw, conversationFields),
	}, nil
}

// message converts a raw message or conversation part. partType overrides
// the record's own part_type when non-empty.
func (n *Normalizer) message(raw map[string]any, partType string) (Message, error) {
	id, ok := stringValue(raw["id"])
	if !ok {
		return Message{}, fmt.Errorf("message has no id")
	}
	createdAt, err := n.timestamp(raw, "created_at")
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", id, err)
	}
	author, err := parseAuthor(raw["author"])
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", id, err)
	}
	body, _ := stringValue(raw["body"])
	if partType == "" {
		partType = PartComment
	}

	return Message{
		ID:        id,
		Body:      body,
		Author:    author,
		CreatedAt: createdAt,
		Type:      partType,
		Metadata:  leftover(raw, messageFields),
	}, nil
}

func (n *Normalizer) timestamp(raw map[string]any, field string) (time.Time, error) {
	secs, ok := epochValue(raw[field])
	if !ok {
		return time.Time{}, fmt.Errorf("missing or invalid %s", field)
	}
	return time.Unix(secs, 0).UTC().Add(n.offset), nil
}

func parseAuthor(value any) (Author, error) {
	raw, ok := value.(map[string]any)
	if !ok {
		return Author{}, fmt.Errorf("missing author")
	}
	id, ok := stringValue(raw["id"])
	if !ok {
		return Author{}, fmt.Errorf("author has no id")
	}
	name, _ := stringValue(raw["name"])
	authorType, _ := stringValue(raw["type"])
	email, _ := stringValue(raw["email"])
	return Author{ID: id, Name: name, Type: authorType, Email: email}, nil
}

// conversationParts digs out the nested parts list. The API wraps it as
// conversation_parts.conversation_parts.
func conversationParts(raw map[string]any) []any {
	wrapper, ok := raw["conversation_parts"].(map[string]any)
	if !ok {
		return nil
	}
	parts, _ := wrapper["conversation_parts"].([]any)
	return parts
}

// flattenTags accepts all three shapes the API produces: a flat list of
// strings, a list of {name: ...} objects, or a {tags: [...]} wrapper.
func flattenTags(value any) []string {
	list, ok := value.([]any)
	if !ok {
		if wrapper, ok := value.(map[string]any); ok {
			list, _ = wrapper["tags"].([]any)
		}
	}
	tags := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			tags = append(tags, v)
		case map[string]any:
			if name, ok := stringValue(v["name"]); ok {
				tags = append(tags, name)
			}
		default:
			tags = append(tags, fmt.Sprint(v))
		}
	}
	return tags
}

// leftover copies every top-level field not claimed by the model.
func leftover(raw map[string]any, claimed map[string]bool) map[string]any {
	var meta map[string]any
	for key, value := range raw {
		if claimed[key] {
			continue
		}
		if meta == nil {
			meta = make(map[string]any)
		}
		meta[key] = value
	}
	return meta
}

// stringValue renders scalar ids tolerantly: the API mixes numeric and
// string ids for the same resources.
func stringValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

func epochValue(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func mapValue(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}
