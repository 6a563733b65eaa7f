package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/transport"
	"github.com/strandapp/strand-service/internal/types"
)

// DirectUploader implements the two-step direct protocol: PUT the bytes to a
// presigned storage URL (bypassing the application tier's body-size ceiling),
// then persist the metadata row in a separate call. The storage write must
// complete and yield a URL before the metadata call is attempted.
type DirectUploader struct {
	store        ObjectStore
	db           AssetStore
	client       *transport.Client
	transferOpts transport.Options
}

func NewDirectUploader(store ObjectStore, db AssetStore, client *transport.Client, transferOpts transport.Options) *DirectUploader {
	return &DirectUploader{store: store, db: db, client: client, transferOpts: transferOpts}
}

func (u *DirectUploader) Upload(ctx context.Context, ownerID string, f media.SubmittedFile, cl media.Classification, onProgress ProgressFunc) (*media.Asset, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("direct upload requires an owner identity")
	}

	progress := newTracker(onProgress)
	objectKey := u.store.GenerateObjectKey(ownerID, f.Name)

	putURL, err := u.store.PresignedPutURL(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("%w: presign: %v", types.ErrStorageWrite, err)
	}

	if err := u.putBytes(ctx, putURL, f, cl.MimeType, progress); err != nil {
		return nil, err
	}

	asset := &media.Asset{
		OwnerID:    ownerID,
		ObjectKey:  objectKey,
		StorageURL: u.store.PublicURL(objectKey),
		FileName:   f.Name,
		ByteSize:   f.Size(),
		MimeType:   cl.MimeType,
		Kind:       cl.Kind,
	}

	if cl.Kind == media.KindImage {
		if w, h, err := media.Dimensions(f.Data); err == nil {
			asset.WidthPx, asset.HeightPx = &w, &h
		}
	}

	// The metadata call is deliberately not retried: a duplicate row
	// pointing at the same URL is worse than an orphaned object.
	if err := u.db.CreateMediaAsset(ctx, asset); err != nil {
		slog.Error("metadata persist failed after direct storage write, object orphaned",
			slog.String("object_key", objectKey),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", types.ErrMetadataPersist, err)
	}

	progress.done()
	return asset, nil
}

func (u *DirectUploader) putBytes(ctx context.Context, putURL string, f media.SubmittedFile, contentType string, progress *tracker) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL,
		newProgressReader(bytes.NewReader(f.Data), f.Size(), progress))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageWrite, err)
	}
	req.ContentLength = f.Size()
	req.Header.Set("Content-Type", contentType)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(newProgressReader(bytes.NewReader(f.Data), f.Size(), progress)), nil
	}

	resp, err := u.client.Do(ctx, req, u.transferOpts)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageWrite, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: storage returned %d", types.ErrStorageWrite, resp.StatusCode)
	}
	return nil
}
