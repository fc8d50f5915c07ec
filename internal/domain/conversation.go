package domain

import (
	"context"
	"time"
)

// ConversationRecord is one stored chat exchange.
type ConversationRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	AgentName   string    `json:"agent_name"`
	ActionTaken string    `json:"action_taken,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ConversationStore persists chat exchanges per user.
type ConversationStore interface {
	Append(ctx context.Context, rec ConversationRecord) error
	// ListByUser returns the newest records first. limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]ConversationRecord, error)
	// PurgeBefore deletes records created before cutoff and reports how many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
