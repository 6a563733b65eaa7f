package types

import "time"

// Post is a user-created item with optional text and zero or more ordered
// media assets, shared to one or more groups.
type Post struct {
	ID             string     `json:"id" db:"id"`
	AuthorID       string     `json:"author_id" db:"author_id"`
	TextContent    string     `json:"text_content,omitempty" db:"text_content"`
	PrimaryMediaID *string    `json:"primary_media_id,omitempty" db:"primary_media_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty" db:"edited_at"`

	// GroupIDs echoes the groups the post was actually shared to. Not a
	// column; populated by the assembler.
	GroupIDs []string `json:"group_ids,omitempty" db:"-"`
}

// PushTarget is a registered push delivery endpoint for a user. This service
// consumes and prunes these rows; registration happens elsewhere.
type PushTarget struct {
	UserID    string `json:"user_id" db:"user_id"`
	Endpoint  string `json:"endpoint" db:"endpoint"`
	P256dhKey string `json:"p256dh_key" db:"p256dh_key"`
	AuthKey   string `json:"auth_key" db:"auth_key"`
}

// Notification is the payload fanned out to push targets.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}
