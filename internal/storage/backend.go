package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the requested path does not exist.
var ErrNotFound = errors.New("file not found")

// copyBufferSize is the buffer size used for file copies (8MB aligns with S3 multipart upload parts)
const copyBufferSize = 8 * 1024 * 1024

// SaveOptions carries hints about the content being saved.
type SaveOptions struct {
	OriginalFilename string
	ContentType      string
}

// SaveResult describes where content was stored and what was written.
// Hash is the hex-encoded SHA-256 of the exact bytes written.
type SaveResult struct {
	Path string
	Hash string
	Size int64
}

// FileInfo holds metadata about a stored file.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Backend defines the behavior required by the application for storing
// document content. This allows swapping implementations (local FS, S3,
// in-memory) while keeping the rest of the codebase implementation-agnostic.
type Backend interface {
	Save(ctx context.Context, r io.Reader, opts SaveOptions) (SaveResult, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (FileInfo, error)
	HealthCheck(ctx context.Context) error
}
