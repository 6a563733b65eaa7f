package post

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/strandapp/strand-service/internal/storage"
	"github.com/strandapp/strand-service/internal/types"
)

// Notifier fans a notification out to a group's subscribed members. It never
// reports failure; outcomes are observed only for logging and pruning.
type Notifier interface {
	NotifyGroup(ctx context.Context, groupID string, excludeUserIDs []string, n types.Notification)
}

// EventPublisher pushes realtime events to connected users. Best-effort.
type EventPublisher interface {
	PublishPostCreated(ctx context.Context, post *types.Post, groupID string)
}

// Assembler builds the composite post: media rows already exist; it verifies
// membership, creates the post row, links media in display order, links
// groups, and triggers notifications.
type Assembler struct {
	db       storage.Storage
	guard    *Guard
	notifier Notifier
	events   EventPublisher
}

func NewAssembler(db storage.Storage, guard *Guard, notifier Notifier, events EventPublisher) *Assembler {
	return &Assembler{db: db, guard: guard, notifier: notifier, events: events}
}

// Assemble runs the persistence steps in order. A step's failure aborts the
// remaining steps; already-committed steps are not rolled back. The media
// link and group share inserts are idempotent, so a client retrying the whole
// call cannot create duplicate rows.
func (a *Assembler) Assemble(ctx context.Context, authorID, textContent string, mediaAssetIDs, groupIDs []string) (*types.Post, error) {
	if strings.TrimSpace(textContent) == "" && len(mediaAssetIDs) == 0 {
		return nil, types.ErrEmptyPost
	}

	// Step 1: authorization, before anything is written.
	if err := a.guard.Verify(ctx, authorID, groupIDs); err != nil {
		return nil, err
	}

	// Step 2: the post row, with the legacy single-media pointer for
	// backward compatible readers.
	post := &types.Post{
		AuthorID:    authorID,
		TextContent: textContent,
	}
	if len(mediaAssetIDs) > 0 {
		post.PrimaryMediaID = &mediaAssetIDs[0]
	}
	if err := a.db.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	// Step 3: ordered media links, display order = submission order.
	for i, mediaID := range mediaAssetIDs {
		if err := a.db.InsertPostMediaLink(ctx, post.ID, mediaID, i); err != nil {
			return nil, fmt.Errorf("link media %s to post %s: %w", mediaID, post.ID, err)
		}
	}

	// Step 4: group shares and notifications, concurrently across groups.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		shared   = make(map[string]bool, len(groupIDs))
	)

	for _, groupID := range groupIDs {
		wg.Add(1)
		go func(groupID string) {
			defer wg.Done()

			if err := a.db.InsertGroupShare(ctx, post.ID, groupID); err != nil {
				// Not rolled back: the post may end up shared to a subset of
				// the requested groups. Logged so the discrepancy is visible;
				// the share insert is idempotent and can be re-run.
				slog.Error("group share insert failed, post partially shared",
					slog.String("post_id", post.ID),
					slog.String("group_id", groupID),
					slog.String("error", err.Error()))
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("share post %s to group %s: %w", post.ID, groupID, err)
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			shared[groupID] = true
			mu.Unlock()

			// Notification delivery is detached: its outcome must never fail
			// the post creation that triggered it, and it outlives the
			// request context.
			if a.notifier != nil {
				nctx := context.WithoutCancel(ctx)
				go a.notifier.NotifyGroup(nctx, groupID, []string{authorID}, buildNotification(post, groupID))
			}
			if a.events != nil {
				a.events.PublishPostCreated(ctx, post, groupID)
			}
		}(groupID)
	}
	wg.Wait()

	for _, groupID := range groupIDs {
		if shared[groupID] {
			post.GroupIDs = append(post.GroupIDs, groupID)
		}
	}

	if firstErr != nil {
		return post, firstErr
	}
	return post, nil
}

func buildNotification(post *types.Post, groupID string) types.Notification {
	body := strings.TrimSpace(post.TextContent)
	if body == "" {
		body = "Shared new media"
	} else if r := []rune(body); len(r) > 120 {
		// Truncate on runes, not bytes, so multi-byte text is never split
		// mid-sequence.
		body = string(r[:117]) + "..."
	}

	return types.Notification{
		Title: "New post in your group",
		Body:  body,
		Data: map[string]string{
			"post_id":   post.ID,
			"group_id":  groupID,
			"author_id": post.AuthorID,
		},
	}
}
