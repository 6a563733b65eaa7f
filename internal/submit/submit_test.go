package submit

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandapp/strand-service/internal/config"
	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/post"
	"github.com/strandapp/strand-service/internal/types"
	"github.com/strandapp/strand-service/internal/upload"
)

// fakeStorage backs the assembler with in-memory rows.
type fakeStorage struct {
	mu sync.Mutex

	memberships map[string][]string
	posts       map[string]*types.Post
	mediaOrder  map[string]map[string]int // postID -> mediaID -> displayOrder
	groupShares map[string][]string
	nextID      int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		memberships: map[string][]string{},
		posts:       map[string]*types.Post{},
		mediaOrder:  map[string]map[string]int{},
		groupShares: map[string][]string{},
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

func (f *fakeStorage) CreatePost(ctx context.Context, p *types.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = string(rune('a' + f.nextID - 1))
	cp := *p
	f.posts[p.ID] = &cp
	return nil
}

func (f *fakeStorage) InsertPostMediaLink(ctx context.Context, postID, mediaID string, displayOrder int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.mediaOrder[postID]
	if !ok {
		order = map[string]int{}
		f.mediaOrder[postID] = order
	}
	if _, exists := order[mediaID]; !exists {
		order[mediaID] = displayOrder
	}
	return nil
}

func (f *fakeStorage) InsertGroupShare(ctx context.Context, postID, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupShares[postID] = append(f.groupShares[postID], groupID)
	return nil
}

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

// fakeUploader records uploads and completes after a randomized delay, so
// completion order differs from submission order.
type fakeUploader struct {
	mu       sync.Mutex
	path     upload.Path
	uploads  []media.SubmittedFile
	failName string // file name whose upload fails
	calls    int32
	jitter   bool
}

func (u *fakeUploader) Upload(ctx context.Context, ownerID string, f media.SubmittedFile, cl media.Classification, onProgress upload.ProgressFunc) (*media.Asset, error) {
	atomic.AddInt32(&u.calls, 1)
	if u.jitter {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	}
	if f.Name == u.failName {
		return nil, types.ErrStorageWrite
	}

	u.mu.Lock()
	u.uploads = append(u.uploads, f)
	u.mu.Unlock()

	if onProgress != nil {
		onProgress(1)
	}
	return &media.Asset{
		ID:       "asset-" + f.Name,
		OwnerID:  ownerID,
		FileName: f.Name,
		ByteSize: f.Size(),
		MimeType: cl.MimeType,
		Kind:     cl.Kind,
	}, nil
}

func newTestService(db *fakeStorage, proxied, direct *fakeUploader) *Service {
	classifier := media.NewClassifier(config.Media{
		ImageSoftLimitBytes: 1 << 20,
		VideoMaxBytes:       64 << 20,
	})
	guard := post.NewGuard(db)
	assembler := post.NewAssembler(db, guard, nil, nil)

	return NewService(
		classifier,
		media.NewCompressor(1<<20),
		upload.NewRouter(1<<20),
		proxied, direct,
		guard, assembler,
		4,
	)
}

func TestSubmitPost_OrderFollowsSubmissionNotCompletion(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}
	proxied := &fakeUploader{path: upload.PathProxied, jitter: true}
	direct := &fakeUploader{path: upload.PathDirect, jitter: true}

	s := newTestService(db, proxied, direct)

	files := []media.SubmittedFile{
		{Name: "one.jpg", MimeType: "image/jpeg", Data: []byte("a")},
		{Name: "two.png", MimeType: "image/png", Data: []byte("b")},
		{Name: "three.mp4", MimeType: "video/mp4", Data: []byte("c")},
	}

	p, err := s.SubmitPost(context.Background(), "author", "caption", files, []string{"g1"})
	require.NoError(t, err)

	order := db.mediaOrder[p.ID]
	require.Len(t, order, 3)
	assert.Equal(t, 0, order["asset-one.jpg"])
	assert.Equal(t, 1, order["asset-two.png"])
	assert.Equal(t, 2, order["asset-three.mp4"])

	require.NotNil(t, p.PrimaryMediaID)
	assert.Equal(t, "asset-one.jpg", *p.PrimaryMediaID)
}

func TestSubmitPost_RoutesVideosDirect(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}
	proxied := &fakeUploader{path: upload.PathProxied}
	direct := &fakeUploader{path: upload.PathDirect}

	s := newTestService(db, proxied, direct)

	files := []media.SubmittedFile{
		{Name: "pic.jpg", MimeType: "image/jpeg", Data: []byte("a")},
		{Name: "clip.mp4", MimeType: "video/mp4", Data: []byte("b")},
	}

	_, err := s.SubmitPost(context.Background(), "author", "", files, []string{"g1"})
	require.NoError(t, err)

	require.Len(t, proxied.uploads, 1)
	assert.Equal(t, "pic.jpg", proxied.uploads[0].Name)
	require.Len(t, direct.uploads, 1)
	assert.Equal(t, "clip.mp4", direct.uploads[0].Name)
}

func TestSubmitPost_EmptyRejected(t *testing.T) {
	db := newFakeStorage()
	s := newTestService(db, &fakeUploader{}, &fakeUploader{})

	_, err := s.SubmitPost(context.Background(), "author", "  \t ", nil, nil)
	require.ErrorIs(t, err, types.ErrEmptyPost)
}

func TestSubmitPost_UnsupportedFileFailsBeforeAnyUpload(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}
	proxied := &fakeUploader{}
	direct := &fakeUploader{}

	s := newTestService(db, proxied, direct)

	files := []media.SubmittedFile{
		{Name: "ok.jpg", MimeType: "image/jpeg", Data: []byte("a")},
		{Name: "doc.pdf", MimeType: "application/pdf", Data: []byte("b")},
	}

	_, err := s.SubmitPost(context.Background(), "author", "", files, []string{"g1"})

	var fileErr *types.FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, 1, fileErr.Index)
	assert.Equal(t, "doc.pdf", fileErr.Name)
	assert.ErrorIs(t, err, types.ErrUnsupportedType)

	// Classification precedes upload: nothing was sent anywhere.
	assert.Zero(t, atomic.LoadInt32(&proxied.calls))
	assert.Zero(t, atomic.LoadInt32(&direct.calls))
	assert.Empty(t, db.posts)
}

func TestSubmitPost_ForbiddenBeforeAnyUpload(t *testing.T) {
	db := newFakeStorage()
	proxied := &fakeUploader{}

	s := newTestService(db, proxied, &fakeUploader{})

	files := []media.SubmittedFile{{Name: "pic.jpg", MimeType: "image/jpeg", Data: []byte("a")}}
	_, err := s.SubmitPost(context.Background(), "author", "", files, []string{"not-mine"})

	var forbidden *types.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Zero(t, atomic.LoadInt32(&proxied.calls))
}

func TestSubmitPost_UploadFailureIdentifiesFile(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}
	proxied := &fakeUploader{failName: "bad.jpg"}

	s := newTestService(db, proxied, &fakeUploader{})

	files := []media.SubmittedFile{
		{Name: "good.jpg", MimeType: "image/jpeg", Data: []byte("a")},
		{Name: "bad.jpg", MimeType: "image/jpeg", Data: []byte("b")},
	}

	p, err := s.SubmitPost(context.Background(), "author", "", files, []string{"g1"})
	require.Nil(t, p)

	var fileErr *types.FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, "bad.jpg", fileErr.Name)
	assert.ErrorIs(t, err, types.ErrStorageWrite)

	// No post row: the assembler never runs when an upload fails.
	assert.Empty(t, db.posts)
}

func TestSubmitPost_CompressionFailureKeepsOriginal(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}
	proxied := &fakeUploader{}

	s := newTestService(db, proxied, &fakeUploader{})

	// Oversized junk that claims to be an image: compression cannot decode
	// it, and the original must still upload.
	junk := bytes.Repeat([]byte("x"), (1<<20)+1)
	files := []media.SubmittedFile{{Name: "huge.jpg", MimeType: "image/jpeg", Data: junk}}

	_, err := s.SubmitPost(context.Background(), "author", "", files, []string{"g1"})
	require.NoError(t, err)

	require.Len(t, proxied.uploads, 1)
	assert.Equal(t, int64(len(junk)), proxied.uploads[0].Size())
}

func TestSubmitPost_ProgressReportsPerFileIndex(t *testing.T) {
	db := newFakeStorage()
	db.memberships["author"] = []string{"g1"}

	s := newTestService(db, &fakeUploader{}, &fakeUploader{})

	var mu sync.Mutex
	seen := map[int]float64{}
	s.OnProgress = func(i int, fraction float64) {
		mu.Lock()
		seen[i] = fraction
		mu.Unlock()
	}

	files := []media.SubmittedFile{
		{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("a")},
		{Name: "b.jpg", MimeType: "image/jpeg", Data: []byte("b")},
	}
	_, err := s.SubmitPost(context.Background(), "author", "", files, []string{"g1"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[int]float64{0: 1, 1: 1}, seen)
}
