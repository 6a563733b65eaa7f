package media

import (
	"bytes"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/strandapp/strand-service/internal/types"
)

// compressionSlots bounds concurrent re-encodes; a full-resolution decode
// holds the whole bitmap in memory. A submission that cannot get a slot
// within the wait uploads its original instead of queueing.
const (
	compressionSlots    = 4
	compressionSlotWait = 250 * time.Millisecond
)

// compression phases, tried in order. Phase 2 only runs when phase 1 output
// still exceeds the budget.
var phases = []struct {
	maxDim  int
	quality int
}{
	{maxDim: 2048, quality: 80},
	{maxDim: 1280, quality: 60},
}

// Compressor re-encodes oversized images to fit a byte budget on a
// best-effort basis. Videos and audio pass through untouched.
type Compressor struct {
	budget int64
	slots  chan struct{}
}

func NewCompressor(targetBudget int64) *Compressor {
	return &Compressor{
		budget: targetBudget,
		slots:  make(chan struct{}, compressionSlots),
	}
}

// Compress returns a re-encoded copy of an oversized image, or the input
// unchanged when it is already under budget or is not an image. When both
// phases run and the result still exceeds the budget, the smallest output is
// used anyway; compression never blocks an upload. Failures are recoverable:
// the returned error carries a cause category and the original file is left
// intact.
func (c *Compressor) Compress(f SubmittedFile, cl Classification) (SubmittedFile, error) {
	if cl.Kind != KindImage || f.Size() <= c.budget {
		return f, nil
	}

	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-time.After(compressionSlotWait):
		return f, &types.CompressionError{
			Category: types.CompressionWorkerUnavailable,
			Err:      fmt.Errorf("all %d compression slots busy", compressionSlots),
		}
	}

	img, err := imaging.Decode(bytes.NewReader(f.Data), imaging.AutoOrientation(true))
	if err != nil {
		return f, &types.CompressionError{Category: types.CompressionUnsupportedFormat, Err: err}
	}

	var best []byte
	for _, p := range phases {
		out, err := encodePhase(img, p.maxDim, p.quality)
		if err != nil {
			if best != nil {
				// Keep the earlier phase's output.
				break
			}
			// Encoding an already-decoded image fails only when the process
			// cannot allocate the output buffer.
			return f, &types.CompressionError{Category: types.CompressionMemoryPressure, Err: err}
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
		if int64(len(out)) <= c.budget {
			break
		}
	}

	// A re-encode that grows the file is worse than no compression at all.
	if int64(len(best)) >= f.Size() {
		return f, nil
	}

	return SubmittedFile{
		Name:     jpegName(f.Name),
		MimeType: "image/jpeg",
		Data:     best,
	}, nil
}

func encodePhase(img image.Image, maxDim, quality int) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail produces a small JPEG rendition of an image for list views.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(img, 320, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(75)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Dimensions reads the pixel size of an encoded image without a full decode.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func jpegName(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + ".jpg"
}
