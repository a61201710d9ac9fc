// Package model defines the data structures exchanged with the chat backend.
package model

import "time"

// Conversation is one entry in the conversation directory.
// The engine never mutates a Conversation outside explicit
// create/delete calls; the backend owns its fields.
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastMessage    string    `json:"lastMessage,omitempty"`
}
