package models

import (
	"strings"
	"time"
)

// Task represents a single assignment handed out in a group chat.
// The store is the only writer; everyone else holds row snapshots.
type Task struct {
	ID             int64      `json:"id"`
	ChatID         int64      `json:"chat_id"`
	AssignerID     int64      `json:"assigner_id"`
	AssigneeID     *int64     `json:"assignee_id,omitempty"`
	AssigneeHandle string     `json:"assignee_handle,omitempty"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"created_at"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	IsDone         bool       `json:"is_done"`
}

// Resolved reports whether the assignee is already a stable identity.
// Tasks created by @handle stay unresolved until that person first
// talks to the bot.
func (t *Task) Resolved() bool {
	return t.AssigneeID != nil
}

// NormalizeHandle strips the leading @ and lowercases a username so
// handle matching is stable across how people type it.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
