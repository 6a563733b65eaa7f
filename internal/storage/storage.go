package storage

import (
	"context"

	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/types"
)

type Storage interface {
	// Media assets. CreateMediaAsset fills ID and CreatedAt.
	CreateMediaAsset(ctx context.Context, asset *media.Asset) error
	GetMediaAsset(ctx context.Context, id string) (*media.Asset, error)
	AssetExistsByObjectKey(ctx context.Context, objectKey string) (bool, error)

	// Posts. CreatePost fills ID and timestamps. DeletePost cascades to
	// media links, group shares and other owned children.
	CreatePost(ctx context.Context, post *types.Post) error
	GetPost(ctx context.Context, id string) (*types.Post, error)
	GetPostMedia(ctx context.Context, postID string) ([]media.Asset, error)
	GetPostGroupIDs(ctx context.Context, postID string) ([]string, error)
	DeletePost(ctx context.Context, id string) error
	UserCanViewPost(ctx context.Context, userID, postID string) (bool, error)

	// Join rows. Both inserts are idempotent: a duplicate pair is a silent
	// no-op, which keeps whole-call retries safe.
	InsertPostMediaLink(ctx context.Context, postID, mediaID string, displayOrder int) error
	InsertGroupShare(ctx context.Context, postID, groupID string) error

	// Membership. GetMemberGroupIDs is one batched lookup over the
	// requested set, never a query per group.
	GetMemberGroupIDs(ctx context.Context, userID string, groupIDs []string) ([]string, error)
	GetGroupMemberIDs(ctx context.Context, groupID string) ([]string, error)

	// Push targets, consumed by the notifier and pruned on permanent
	// delivery failure.
	GetPushTargetsForGroup(ctx context.Context, groupID string, excludeUserIDs []string) ([]types.PushTarget, error)
	DeletePushTarget(ctx context.Context, userID, endpoint string) error
}
