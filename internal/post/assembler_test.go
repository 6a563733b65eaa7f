package post

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/types"
)

const (
	waitFor = time.Second
	tick    = 10 * time.Millisecond
)

// fakeStorage is an in-memory stand-in for the postgres layer with the same
// idempotency semantics: duplicate join rows are silent no-ops.
type fakeStorage struct {
	mu sync.Mutex

	memberships map[string][]string // userID -> groupIDs
	posts       map[string]*types.Post
	mediaLinks  map[string]map[string]int // postID -> mediaID -> displayOrder
	groupShares map[string]map[string]bool

	nextPostID  int
	failShareOn string // groupID whose share insert fails
	createErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		memberships: map[string][]string{},
		posts:       map[string]*types.Post{},
		mediaLinks:  map[string]map[string]int{},
		groupShares: map[string]map[string]bool{},
	}
}

func (f *fakeStorage) GetMemberGroupIDs(ctx context.Context, userID string, groupIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	member := map[string]bool{}
	for _, id := range f.memberships[userID] {
		member[id] = true
	}
	var out []string
	for _, id := range groupIDs {
		if member[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStorage) CreatePost(ctx context.Context, post *types.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	f.nextPostID++
	post.ID = string(rune('a' + f.nextPostID - 1))
	cp := *post
	f.posts[post.ID] = &cp
	return nil
}

func (f *fakeStorage) InsertPostMediaLink(ctx context.Context, postID, mediaID string, displayOrder int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	links, ok := f.mediaLinks[postID]
	if !ok {
		links = map[string]int{}
		f.mediaLinks[postID] = links
	}
	if _, exists := links[mediaID]; exists {
		return nil // duplicate pair is a no-op
	}
	links[mediaID] = displayOrder
	return nil
}

func (f *fakeStorage) InsertGroupShare(ctx context.Context, postID, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if groupID == f.failShareOn {
		return errors.New("share insert failed")
	}
	shares, ok := f.groupShares[postID]
	if !ok {
		shares = map[string]bool{}
		f.groupShares[postID] = shares
	}
	shares[groupID] = true
	return nil
}

// Unused by the assembler; present to satisfy storage.Storage.
func (f *fakeStorage) CreateMediaAsset(ctx context.Context, asset *media.Asset) error { return nil }
func (f *fakeStorage) GetMediaAsset(ctx context.Context, id string) (*media.Asset, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStorage) AssetExistsByObjectKey(ctx context.Context, objectKey string) (bool, error) {
	return false, nil
}
func (f *fakeStorage) GetPost(ctx context.Context, id string) (*types.Post, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStorage) GetPostMedia(ctx context.Context, postID string) ([]media.Asset, error) {
	return nil, nil
}
func (f *fakeStorage) GetPostGroupIDs(ctx context.Context, postID string) ([]string, error) {
	return nil, nil
}
func (f *fakeStorage) DeletePost(ctx context.Context, id string) error { return nil }
func (f *fakeStorage) UserCanViewPost(ctx context.Context, userID, postID string) (bool, error) {
	return false, nil
}
func (f *fakeStorage) GetGroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return nil, nil
}
func (f *fakeStorage) GetPushTargetsForGroup(ctx context.Context, groupID string, excludeUserIDs []string) ([]types.PushTarget, error) {
	return nil, nil
}
func (f *fakeStorage) DeletePushTarget(ctx context.Context, userID, endpoint string) error {
	return nil
}

// recordingNotifier captures NotifyGroup calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) NotifyGroup(ctx context.Context, groupID string, excludeUserIDs []string, n types.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, groupID)
}

func TestAssemble_LinksMediaInSubmissionOrder(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}

	a := NewAssembler(db, NewGuard(db), nil, nil)

	post, err := a.Assemble(context.Background(), "author", "hello", []string{"m1", "m2", "m3"}, []string{"g1"})
	require.NoError(t, err)
	require.NotEmpty(t, post.ID)

	links := db.mediaLinks[post.ID]
	require.Len(t, links, 3)
	assert.Equal(t, 0, links["m1"])
	assert.Equal(t, 1, links["m2"])
	assert.Equal(t, 2, links["m3"])

	require.NotNil(t, post.PrimaryMediaID)
	assert.Equal(t, "m1", *post.PrimaryMediaID)
	assert.Equal(t, []string{"g1"}, post.GroupIDs)
}

func TestAssemble_EmptyPostRejected(t *testing.T) {
	db := newFakeStorage()
	a := NewAssembler(db, NewGuard(db), nil, nil)

	_, err := a.Assemble(context.Background(), "author", "   ", nil, nil)
	require.ErrorIs(t, err, types.ErrEmptyPost)
	assert.Empty(t, db.posts, "no rows may be written for an empty post")
}

func TestAssemble_ForbiddenWritesNothing(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}

	a := NewAssembler(db, NewGuard(db), nil, nil)

	_, err := a.Assemble(context.Background(), "author", "hi", []string{"m1"}, []string{"g1", "g2"})

	var forbidden *types.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, []string{"g2"}, forbidden.GroupIDs)

	// Authorization runs before any write: zero rows of any kind.
	assert.Empty(t, db.posts)
	assert.Empty(t, db.mediaLinks)
	assert.Empty(t, db.groupShares)
}

func TestAssemble_TextOnlyPost(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}

	a := NewAssembler(db, NewGuard(db), nil, nil)

	post, err := a.Assemble(context.Background(), "author", "words only", nil, []string{"g1"})
	require.NoError(t, err)
	assert.Nil(t, post.PrimaryMediaID)
	assert.Empty(t, db.mediaLinks[post.ID])
}

func TestAssemble_PartialShareSurfacesError(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1", "g2"}
	db.failShareOn = "g2"

	a := NewAssembler(db, NewGuard(db), nil, nil)

	post, err := a.Assemble(context.Background(), "author", "hi", nil, []string{"g1", "g2"})
	require.Error(t, err)

	// The post row and the successful share survive; nothing is rolled back.
	require.NotNil(t, post)
	assert.True(t, db.groupShares[post.ID]["g1"])
	assert.False(t, db.groupShares[post.ID]["g2"])
	assert.Equal(t, []string{"g1"}, post.GroupIDs)
}

func TestAssemble_NotifiesEachSharedGroup(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1", "g2"}
	notifier := &recordingNotifier{}

	a := NewAssembler(db, NewGuard(db), notifier, nil)

	_, err := a.Assemble(context.Background(), "author", "hi", nil, []string{"g1", "g2"})
	require.NoError(t, err)

	// Delivery is detached; poll briefly for both calls.
	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.calls) == 2
	}, waitFor, tick)
}

func TestBuildNotification_TruncatesOnRuneBoundary(t *testing.T) {
	post := &types.Post{ID: "p1", AuthorID: "author", TextContent: strings.Repeat("é", 130)}

	n := buildNotification(post, "g1")

	assert.True(t, utf8.ValidString(n.Body), "truncation must not split a rune")
	assert.Equal(t, 120, utf8.RuneCountInString(n.Body))
	assert.True(t, strings.HasSuffix(n.Body, "..."))
}

func TestAssemble_RetryIsIdempotent(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}

	a := NewAssembler(db, NewGuard(db), nil, nil)

	first, err := a.Assemble(context.Background(), "author", "hi", []string{"m1"}, []string{"g1"})
	require.NoError(t, err)

	// Re-running the join inserts for the same post must not duplicate rows.
	require.NoError(t, db.InsertPostMediaLink(context.Background(), first.ID, "m1", 0))
	require.NoError(t, db.InsertGroupShare(context.Background(), first.ID, "g1"))

	assert.Len(t, db.mediaLinks[first.ID], 1)
	assert.Len(t, db.groupShares[first.ID], 1)
}
