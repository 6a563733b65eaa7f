package types

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline error taxonomy. Validation errors are detected before any network
// or storage call; transport errors are retried before they surface.
var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrEmptyPost       = errors.New("post must contain text or at least one media file")
	ErrTimeout         = errors.New("request timed out")
	ErrNetwork         = errors.New("network failure")
	ErrStorageWrite    = errors.New("storage write failed")
	ErrMetadataPersist = errors.New("media metadata persist failed")
)

// ForbiddenError is returned when the acting user is not a member of every
// target group. GroupIDs lists exactly the groups that failed verification.
type ForbiddenError struct {
	GroupIDs []string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("not a member of groups: %s", strings.Join(e.GroupIDs, ", "))
}

// CompressionCategory is a human-readable cause bucket for compression
// failures.
type CompressionCategory string

const (
	CompressionUnsupportedFormat CompressionCategory = "unsupported format"
	CompressionMemoryPressure    CompressionCategory = "memory pressure"
	CompressionWorkerUnavailable CompressionCategory = "worker unavailable"
)

// CompressionError is recoverable: the caller keeps the original file and the
// upload proceeds uncompressed.
type CompressionError struct {
	Category CompressionCategory
	Err      error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compression failed (%s): %v", e.Category, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// FileError identifies which file of a multi-file submission failed. The
// submission policy is fail-fast, so the first FileError aborts the files
// that have not started uploading yet.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
