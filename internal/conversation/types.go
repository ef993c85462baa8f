// Package conversation defines the canonical conversation model and the
// normalization of raw Intercom API records into it.
package conversation

import "time"

// Author types as reported by the API.
const (
	AuthorUser  = "user"
	AuthorAdmin = "admin"
	AuthorBot   = "bot"
)

// Part types a message can carry.
const (
	PartComment    = "comment"
	PartNote       = "note"
	PartAssignment = "assignment"
)

// Author identifies a message sender.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
}

// Message is one utterance within a conversation. Metadata preserves raw
// API fields that are not otherwise modeled.
type Message struct {
	ID        string         `json:"id"`
	Body      string         `json:"body"`
	Author    Author         `json:"author"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation aggregates messages plus conversation-level metadata.
// Messages are sorted ascending by CreatedAt after construction; values are
// never mutated afterwards.
type Conversation struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Title            string         `json:"title,omitempty"`
	State            string         `json:"state"`
	Messages         []Message      `json:"messages"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
	Tags             []string       `json:"tags"`
	Source           map[string]any `json:"source,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}
