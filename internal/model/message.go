package model

import (
	"strings"
	"time"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RoleFromHistoryType maps the backend history "type" field to a Role.
// Only a case-insensitive match on "USER" yields RoleUser; every other
// value, including unrecognized ones, folds into RoleAssistant. This
// mirrors the backend contract and must not be tightened client-side.
func RoleFromHistoryType(t string) Role {
	if strings.EqualFold(t, "USER") {
		return RoleUser
	}
	return RoleAssistant
}

// Message is one entry in a conversation transcript.
//
// Messages are immutable once finalized. The single in-progress
// assistant message during streaming is the only exception: its
// content grows append-only until the exchange terminates.
type Message struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId"`
}

// HistoryEntry is the raw history record returned by the backend
// before role mapping and local ID assignment.
type HistoryEntry struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	Timestamp      string `json:"timestamp"`
}
