package post

import (
	"context"
	"fmt"

	"github.com/strandapp/strand-service/internal/types"
)

// MembershipStore answers batched membership lookups. The postgres storage
// satisfies it directly; the redis cache wraps it.
type MembershipStore interface {
	GetMemberGroupIDs(ctx context.Context, userID string, groupIDs []string) ([]string, error)
}

// Guard verifies the acting user belongs to every target group before any
// persistence happens. One batched lookup, never a query per group.
type Guard struct {
	store MembershipStore
}

func NewGuard(store MembershipStore) *Guard {
	return &Guard{store: store}
}

// Verify returns nil when userID is a member of every group in groupIDs, or
// a ForbiddenError listing exactly the groups that failed. All-or-nothing:
// a single bad group fails the whole set.
func (g *Guard) Verify(ctx context.Context, userID string, groupIDs []string) error {
	if len(groupIDs) == 0 {
		return nil
	}

	memberOf, err := g.store.GetMemberGroupIDs(ctx, userID, groupIDs)
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}

	ok := make(map[string]bool, len(memberOf))
	for _, id := range memberOf {
		ok[id] = true
	}

	var invalid []string
	seen := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !ok[id] {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return &types.ForbiddenError{GroupIDs: invalid}
	}
	return nil
}
