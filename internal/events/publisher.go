package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/strandapp/strand-service/internal/types"
)

// Publisher interface for publishing realtime events
type Publisher interface {
	PublishPostCreated(ctx context.Context, post *types.Post, groupID string)
	PublishPostDeleted(ctx context.Context, postID string, groupIDs []string)
}

// WebSocketHub interface for the WebSocket hub
type WebSocketHub interface {
	BroadcastToUsers(userIDs []string, event *types.Event)
	ConnectedUsers(userIDs []string) []string
}

// MemberLister resolves a group to its member user ids
type MemberLister interface {
	GetGroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// EventPublisher fans realtime events out to connected group members.
// Best-effort: a failed lookup or a saturated hub drops the event.
type EventPublisher struct {
	hub     WebSocketHub
	members MemberLister
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(hub WebSocketHub, members MemberLister) *EventPublisher {
	return &EventPublisher{
		hub:     hub,
		members: members,
	}
}

// PublishPostCreated notifies connected members of the group, excluding the
// author. Members who are offline get nothing here; push delivery covers them.
func (p *EventPublisher) PublishPostCreated(ctx context.Context, post *types.Post, groupID string) {
	memberIDs, err := p.members.GetGroupMemberIDs(ctx, groupID)
	if err != nil {
		slog.Warn("failed to resolve group members for realtime event",
			slog.String("group_id", groupID),
			slog.String("error", err.Error()))
		return
	}

	targets := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != post.AuthorID {
			targets = append(targets, id)
		}
	}

	connected := p.hub.ConnectedUsers(targets)
	if len(connected) == 0 {
		return
	}

	eventData := &types.PostCreatedEvent{
		PostID:    post.ID,
		AuthorID:  post.AuthorID,
		GroupID:   groupID,
		CreatedAt: post.CreatedAt.UTC().Format(time.RFC3339),
	}

	p.hub.BroadcastToUsers(connected, types.NewEvent(types.EventPostCreated, eventData))
}

// PublishPostDeleted notifies connected members of every group the post was
// shared to.
func (p *EventPublisher) PublishPostDeleted(ctx context.Context, postID string, groupIDs []string) {
	for _, groupID := range groupIDs {
		memberIDs, err := p.members.GetGroupMemberIDs(ctx, groupID)
		if err != nil {
			slog.Warn("failed to resolve group members for realtime event",
				slog.String("group_id", groupID),
				slog.String("error", err.Error()))
			continue
		}

		connected := p.hub.ConnectedUsers(memberIDs)
		if len(connected) == 0 {
			continue
		}

		eventData := &types.PostDeletedEvent{
			PostID:  postID,
			GroupID: groupID,
		}

		p.hub.BroadcastToUsers(connected, types.NewEvent(types.EventPostDeleted, eventData))
	}
}
