package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/transport"
	"github.com/strandapp/strand-service/internal/types"
)

// ThumbnailSuffix is appended to an image's object key to form its thumbnail
// rendition's key. Thumbnails have no metadata row of their own; they live
// and die with the base object's asset row.
const ThumbnailSuffix = "_thumb.jpg"

// ProxiedUploader writes the bytes to object storage from the application
// tier, then synchronously persists the metadata row. One logical hop from
// the caller's perspective.
type ProxiedUploader struct {
	store        ObjectStore
	db           AssetStore
	transferOpts transport.Options
}

func NewProxiedUploader(store ObjectStore, db AssetStore, transferOpts transport.Options) *ProxiedUploader {
	return &ProxiedUploader{store: store, db: db, transferOpts: transferOpts}
}

func (u *ProxiedUploader) Upload(ctx context.Context, ownerID string, f media.SubmittedFile, cl media.Classification, onProgress ProgressFunc) (*media.Asset, error) {
	progress := newTracker(onProgress)
	objectKey := u.store.GenerateObjectKey(ownerID, f.Name)

	var storageURL string
	err := transport.Retry(ctx, u.transferOpts, func(attemptCtx context.Context) error {
		url, err := u.store.Put(attemptCtx, objectKey, f.Data, cl.MimeType)
		if err != nil {
			return err
		}
		storageURL = url
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStorageWrite, err)
	}
	progress.report(0.9)

	asset := &media.Asset{
		OwnerID:      ownerID,
		ObjectKey:    objectKey,
		StorageURL:   storageURL,
		ThumbnailURL: u.thumbnailURL(ctx, objectKey, f, cl),
		FileName:     f.Name,
		ByteSize:     f.Size(),
		MimeType:     cl.MimeType,
		Kind:         cl.Kind,
	}

	if cl.Kind == media.KindImage {
		if w, h, err := media.Dimensions(f.Data); err == nil {
			asset.WidthPx, asset.HeightPx = &w, &h
		}
	}

	if err := u.db.CreateMediaAsset(ctx, asset); err != nil {
		// The object is already in storage; it stays unreferenced until the
		// sweeper collects it.
		slog.Error("media metadata persist failed, object orphaned",
			slog.String("object_key", objectKey),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", types.ErrMetadataPersist, err)
	}

	progress.done()
	return asset, nil
}

// thumbnailURL uploads a small rendition for images. Best-effort: on any
// failure the thumbnail falls back to the storage URL.
func (u *ProxiedUploader) thumbnailURL(ctx context.Context, objectKey string, f media.SubmittedFile, cl media.Classification) string {
	if cl.Kind != media.KindImage {
		return ""
	}

	thumb, err := media.Thumbnail(f.Data)
	if err != nil {
		return ""
	}

	thumbKey := objectKey + ThumbnailSuffix
	url, err := u.store.Put(ctx, thumbKey, thumb, "image/jpeg")
	if err != nil {
		slog.Warn("thumbnail upload failed",
			slog.String("object_key", thumbKey),
			slog.String("error", err.Error()))
		return ""
	}
	return url
}
