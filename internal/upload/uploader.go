package upload

import (
	"context"

	"github.com/strandapp/strand-service/internal/media"
)

// Uploader carries one file to object storage and persists its metadata row.
// The two implementations share this contract so call sites never branch on
// the path.
type Uploader interface {
	Upload(ctx context.Context, ownerID string, f media.SubmittedFile, cl media.Classification, onProgress ProgressFunc) (*media.Asset, error)
}

// ObjectStore is the slice of the storage service the uploaders need.
type ObjectStore interface {
	Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error)
	PresignedPutURL(ctx context.Context, objectKey string) (string, error)
	PublicURL(objectKey string) string
	GenerateObjectKey(ownerID, fileName string) string
}

// AssetStore persists media metadata rows.
type AssetStore interface {
	CreateMediaAsset(ctx context.Context, asset *media.Asset) error
}
