package media

import "time"

// Kind is the coarse media category a file resolves to.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Asset represents an uploaded media object's metadata record in the database.
// Assets are immutable after creation; edit flows replace them wholesale.
type Asset struct {
	ID              string    `json:"id" db:"id"`
	OwnerID         string    `json:"owner_id" db:"owner_id"`
	ObjectKey       string    `json:"object_key" db:"object_key"`
	StorageURL      string    `json:"storage_url" db:"storage_url"`
	ThumbnailURL    string    `json:"thumbnail_url" db:"thumbnail_url"`
	FileName        string    `json:"file_name" db:"file_name"`
	ByteSize        int64     `json:"byte_size" db:"byte_size"`
	MimeType        string    `json:"mime_type" db:"mime_type"`
	Kind            Kind      `json:"media_kind" db:"media_kind"`
	DurationSeconds *int      `json:"duration_seconds,omitempty" db:"duration_seconds"`
	WidthPx         *int      `json:"width_px,omitempty" db:"width_px"`
	HeightPx        *int      `json:"height_px,omitempty" db:"height_px"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// SubmittedFile is an immutable byte buffer handed over at submission time.
// The pipeline owns the buffer; nothing upstream can invalidate it mid-upload.
type SubmittedFile struct {
	Name     string
	MimeType string // declared by the client, may be empty or generic
	Data     []byte
}

func (f SubmittedFile) Size() int64 {
	return int64(len(f.Data))
}

// Classification is the normalized result of inspecting a submitted file.
type Classification struct {
	Kind     Kind
	MimeType string
}

// UploadURLRequest asks for a presigned URL for a client-direct upload.
type UploadURLRequest struct {
	FileName    string `json:"file_name" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	ByteSize    int64  `json:"byte_size" validate:"required,min=1"`
}

// ConfirmUploadRequest persists the metadata row after a successful
// client-direct storage write. This is the metadata-only half of the
// two-step direct protocol.
type ConfirmUploadRequest struct {
	ObjectKey   string `json:"object_key" validate:"required"`
	FileName    string `json:"file_name" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	ByteSize    int64  `json:"byte_size" validate:"required,min=1"`
}
