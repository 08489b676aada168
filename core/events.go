package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBindingCompleted EventType = "binding.completed"
	EventScoreSet         EventType = "score.set"
	EventCheckInCompleted EventType = "checkin.completed"
)

type Event struct {
	ID               uuid.UUID `json:"id"`
	Type             EventType `json:"type"`
	ChatUserID       string    `json:"chat_user_id"`
	ExternalUsername string    `json:"external_username"`
	Score            int64     `json:"score,omitempty"`
	Gained           int       `json:"gained,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, chatUserID, externalUsername string, at time.Time) Event {
	return Event{
		ID:               uuid.New(),
		Type:             eventType,
		ChatUserID:       chatUserID,
		ExternalUsername: externalUsername,
		OccurredAt:       at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
