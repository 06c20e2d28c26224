package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound means the upload session id is unknown: it never
	// existed, was cancelled, was swept, or was already consumed by a
	// successful completion.
	ErrSessionNotFound = errors.New("invalid upload session")

	// ErrFileTooLarge means the declared size exceeds the configured maximum.
	ErrFileTooLarge = errors.New("file size exceeds limit")

	// ErrInvalidParams means the init request was malformed.
	ErrInvalidParams = errors.New("invalid upload parameters")
)

// IncompleteUploadError reports the first missing chunk index found when
// completing an upload. The session survives; the caller re-uploads the
// chunk and retries.
type IncompleteUploadError struct {
	MissingIndex int
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("missing chunk %d", e.MissingIndex)
}

// ChunkRangeError reports a chunk index outside [0, totalChunks).
type ChunkRangeError struct {
	Index       int
	TotalChunks int
}

func (e *ChunkRangeError) Error() string {
	return fmt.Sprintf("chunk index %d out of range (total chunks %d)", e.Index, e.TotalChunks)
}
