package types

import "time"

// EventType represents the type of real-time event
type EventType string

const (
	EventPostCreated EventType = "post.created"
	EventPostDeleted EventType = "post.deleted"
)

// Event represents a real-time event that can be sent over WebSocket
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// PostCreatedEvent is broadcast to connected members of a group the post was
// shared to, excluding the author.
type PostCreatedEvent struct {
	PostID    string `json:"post_id"`
	AuthorID  string `json:"author_id"`
	GroupID   string `json:"group_id"`
	CreatedAt string `json:"created_at"`
}

// PostDeletedEvent is broadcast when a post is removed.
type PostDeletedEvent struct {
	PostID  string `json:"post_id"`
	GroupID string `json:"group_id"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
