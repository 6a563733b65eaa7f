package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/strandapp/strand-service/internal/config"
	"github.com/strandapp/strand-service/internal/types"
)

// extToMime normalizes the MIME type from the file extension when the
// declared type is empty or generic. Some client platforms report no MIME
// type at all, so the extension is the fallback source of truth.
var extToMime = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"webm": "video/webm",
}

// Classifier validates and normalizes submitted files. Pure inspection; no
// side effects and no network calls.
type Classifier struct {
	imageSoftLimit int64
	videoMaxBytes  int64
}

func NewClassifier(cfg config.Media) *Classifier {
	return &Classifier{
		imageSoftLimit: cfg.ImageSoftLimitBytes,
		videoMaxBytes:  cfg.VideoMaxBytes,
	}
}

// Classify determines the media kind and normalized MIME type of a file.
// Either the declared MIME type or the extension may decide the kind on its
// own; if both are absent, or they contradict each other, the file is
// rejected. Videos and audio over the hard ceiling are rejected here, before
// any network call is attempted.
func (c *Classifier) Classify(f SubmittedFile) (Classification, error) {
	return c.ClassifyDeclared(f.Name, f.MimeType, f.Size())
}

// ClassifyDeclared applies the same rules from metadata alone, for the
// client-direct flow where the bytes never transit this service.
func (c *Classifier) ClassifyDeclared(name, mimeType string, byteSize int64) (Classification, error) {
	if byteSize <= 0 {
		return Classification{}, fmt.Errorf("%w: empty file %q", types.ErrUnsupportedType, name)
	}

	declared := normalizeDeclared(mimeType)
	extMime := extToMime[extension(name)]

	declaredKind := kindFromMime(declared)
	extKind := kindFromMime(extMime)

	if declaredKind == "" && extKind == "" {
		return Classification{}, fmt.Errorf("%w: %q (declared %q)", types.ErrUnsupportedType, name, mimeType)
	}
	if declaredKind != "" && extKind != "" && declaredKind != extKind {
		return Classification{}, fmt.Errorf("%w: %q declares %s but extension says %s",
			types.ErrUnsupportedType, name, declaredKind, extKind)
	}

	kind := declaredKind
	if kind == "" {
		kind = extKind
	}

	// The source that decided the kind also supplies the MIME type. A
	// declared non-media type (say application/pdf on photo.jpg) must not
	// survive onto a file classified by its extension.
	mime := declared
	if declaredKind == "" {
		mime = extMime
	}

	// Videos and audio cannot be compressed down, so the ceiling is hard.
	if (kind == KindVideo || kind == KindAudio) && byteSize > c.videoMaxBytes {
		return Classification{}, fmt.Errorf("%w: %q is %d bytes, limit %d",
			types.ErrPayloadTooLarge, name, byteSize, c.videoMaxBytes)
	}

	return Classification{Kind: kind, MimeType: mime}, nil
}

// NeedsCompression reports whether an image exceeds the recommended soft
// limit. Oversized images are compressed, never rejected.
func (c *Classifier) NeedsCompression(cl Classification, byteSize int64) bool {
	return cl.Kind == KindImage && byteSize > c.imageSoftLimit
}

// ImageSoftLimit returns the compression budget for images.
func (c *Classifier) ImageSoftLimit() int64 {
	return c.imageSoftLimit
}

func normalizeDeclared(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	// A generic type carries no signal; fall back to the extension.
	if mime == "application/octet-stream" || mime == "binary/octet-stream" {
		return ""
	}
	return mime
}

func kindFromMime(mime string) Kind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return ""
	}
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
