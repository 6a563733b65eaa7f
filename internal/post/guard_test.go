package post

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandapp/strand-service/internal/types"
)

// countingMembershipStore wraps membership data and counts lookups, so the
// batched-query guarantee is observable.
type countingMembershipStore struct {
	member  map[string]bool
	lookups int32
	err     error
}

func (s *countingMembershipStore) GetMemberGroupIDs(ctx context.Context, userID string, groupIDs []string) ([]string, error) {
	atomic.AddInt32(&s.lookups, 1)
	if s.err != nil {
		return nil, s.err
	}
	var out []string
	for _, id := range groupIDs {
		if s.member[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestVerify_AllMember(t *testing.T) {
	store := &countingMembershipStore{member: map[string]bool{"g1": true, "g2": true}}
	g := NewGuard(store)

	err := g.Verify(context.Background(), "u1", []string{"g1", "g2"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.lookups, "one batched lookup, never per group")
}

func TestVerify_EmptyGroupListSkipsLookup(t *testing.T) {
	store := &countingMembershipStore{}
	g := NewGuard(store)

	require.NoError(t, g.Verify(context.Background(), "u1", nil))
	assert.EqualValues(t, 0, store.lookups)
}

func TestVerify_AllOrNothing(t *testing.T) {
	store := &countingMembershipStore{member: map[string]bool{"g1": true, "g3": true}}
	g := NewGuard(store)

	err := g.Verify(context.Background(), "u1", []string{"g1", "g2", "g3", "g4"})

	var forbidden *types.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	// Invalid ids come back in request order.
	assert.Equal(t, []string{"g2", "g4"}, forbidden.GroupIDs)
}

func TestVerify_DeduplicatesInvalidIDs(t *testing.T) {
	store := &countingMembershipStore{member: map[string]bool{}}
	g := NewGuard(store)

	err := g.Verify(context.Background(), "u1", []string{"g1", "g1", "g1"})

	var forbidden *types.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, []string{"g1"}, forbidden.GroupIDs)
}

func TestVerify_LookupFailureIsNotForbidden(t *testing.T) {
	store := &countingMembershipStore{err: errors.New("db down")}
	g := NewGuard(store)

	err := g.Verify(context.Background(), "u1", []string{"g1"})
	require.Error(t, err)

	// Infrastructure failure must not masquerade as an authorization verdict.
	var forbidden *types.ForbiddenError
	assert.False(t, errors.As(err, &forbidden))
}
