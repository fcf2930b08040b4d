// Package events publishes user lifecycle events to Redis Streams.
package events

import "time"

// Event types.
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"
)

// UserEventsStream is the default stream for user events.
const UserEventsStream = "user.events"

// Event is the envelope stored in the "event" field of a stream entry.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// UserEvent is the payload of every user lifecycle event.
type UserEvent struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status bool   `json:"status"`
}
