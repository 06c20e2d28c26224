package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/docstash/docstash/internal/database/models"
	"github.com/docstash/docstash/internal/logger"
	"github.com/docstash/docstash/internal/metrics"
	"github.com/docstash/docstash/internal/storage"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Assembler accepts a file in independently-uploaded chunks, tracks receipt
// per session, reassembles chunks in index order into a final document, and
// guarantees cleanup of partial state on completion, cancellation, or sweep.
type Assembler struct {
	db      *gorm.DB
	store   *SessionStore
	backend storage.Backend
	tempDir string
	maxSize int64
}

// NewAssembler creates an assembler writing chunk files under tempDir.
// An empty tempDir falls back to the system temp directory.
func NewAssembler(db *gorm.DB, store *SessionStore, backend storage.Backend, tempDir string, maxSize int64) *Assembler {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "docstash-uploads")
	}
	return &Assembler{
		db:      db,
		store:   store,
		backend: backend,
		tempDir: tempDir,
		maxSize: maxSize,
	}
}

// Init starts a new upload session and returns its unguessable id.
func (a *Assembler) Init(ctx context.Context, ownerID uint, fileName string, declaredSize int64, totalChunks int, metadata map[string]string) (string, error) {
	if fileName == "" || declaredSize <= 0 || totalChunks <= 0 {
		return "", ErrInvalidParams
	}
	if declaredSize > a.maxSize {
		return "", ErrFileTooLarge
	}

	sessionID := uuid.New().String()
	sessionDir := filepath.Join(a.tempDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	a.store.Put(&Session{
		ID:           sessionID,
		FileName:     fileName,
		DeclaredSize: declaredSize,
		TotalChunks:  totalChunks,
		Metadata:     metadata,
		OwnerID:      ownerID,
		TempDir:      sessionDir,
		Chunks:       make(map[int]ChunkRef),
		CreatedAt:    time.Now(),
	})
	metrics.UploadSessionsActive.Set(float64(a.store.Len()))

	logger.Info("upload session initialized",
		"upload_id", sessionID,
		"owner_id", ownerID,
		"filename", fileName,
		"size", declaredSize,
		"chunks", totalChunks,
	)
	return sessionID, nil
}

// StoreChunk writes one chunk's bytes to a temp file and records it in the
// session. Re-uploading the same index overwrites the prior chunk, so client
// retries are safe. Only the session's owner may add chunks; anyone else
// sees the same error as an unknown session.
func (a *Assembler) StoreChunk(ctx context.Context, sessionID string, ownerID uint, index int, r io.Reader) (int64, error) {
	sess, ok := a.store.Snapshot(sessionID)
	if !ok || sess.OwnerID != ownerID {
		return 0, ErrSessionNotFound
	}
	if index < 0 || index >= sess.TotalChunks {
		return 0, &ChunkRangeError{Index: index, TotalChunks: sess.TotalChunks}
	}

	chunkPath := filepath.Join(sess.TempDir, fmt.Sprintf("chunk_%d", index))
	chunkFile, err := os.Create(chunkPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create chunk file: %w", err)
	}

	written, err := io.Copy(chunkFile, r)
	chunkFile.Close()
	if err != nil {
		os.Remove(chunkPath)
		return 0, fmt.Errorf("failed to write chunk: %w", err)
	}

	if !a.store.SetChunk(sessionID, index, ChunkRef{Path: chunkPath, Size: written}) {
		// Session vanished while we were writing (cancel or sweep won
		// the race); don't leave the chunk behind.
		os.Remove(chunkPath)
		return 0, ErrSessionNotFound
	}

	logger.Debug("chunk stored", "upload_id", sessionID, "chunk", index, "size", written)
	return written, nil
}

// Complete reassembles all chunks in ascending index order into one final
// document, computes the whole-file checksum, persists the document record,
// and cleans up the session and every chunk file.
//
// A missing index aborts with IncompleteUploadError and leaves the session
// intact so the client can upload the chunk and retry. Read failures during
// assembly likewise leave the session untouched. The session is only
// consumed after the assembled artifact is safely in the storage backend.
func (a *Assembler) Complete(ctx context.Context, sessionID string, ownerID uint) (*models.Document, error) {
	sess, ok := a.store.Snapshot(sessionID)
	if !ok || sess.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}

	for i := 0; i < sess.TotalChunks; i++ {
		if _, received := sess.Chunks[i]; !received {
			return nil, &IncompleteUploadError{MissingIndex: i}
		}
	}

	// Assemble into a temp file, hashing as we go.
	finalPath := filepath.Join(sess.TempDir, "complete")
	finalFile, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create assembly file: %w", err)
	}

	hasher := sha256.New()
	writer := io.MultiWriter(finalFile, hasher)

	for i := 0; i < sess.TotalChunks; i++ {
		chunkFile, err := os.Open(sess.Chunks[i].Path)
		if err != nil {
			finalFile.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("failed to open chunk %d: %w", i, err)
		}
		_, err = io.Copy(writer, chunkFile)
		chunkFile.Close()
		if err != nil {
			finalFile.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("failed to copy chunk %d: %w", i, err)
		}
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	if _, err := finalFile.Seek(0, io.SeekStart); err != nil {
		finalFile.Close()
		os.Remove(finalPath)
		return nil, fmt.Errorf("failed to rewind assembly file: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(sess.FileName))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	saveResult, err := a.backend.Save(ctx, finalFile, storage.SaveOptions{
		OriginalFilename: sess.FileName,
		ContentType:      mimeType,
	})
	finalFile.Close()
	if err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("failed to store assembled file: %w", err)
	}

	// Claim the session. Exactly one completion (or a racing cancel/sweep)
	// wins; the losers must not produce a duplicate document.
	claimed, ok := a.store.Remove(sessionID)
	if !ok {
		a.backend.Delete(ctx, saveResult.Path)
		os.Remove(finalPath)
		return nil, ErrSessionNotFound
	}
	metrics.UploadSessionsActive.Set(float64(a.store.Len()))

	doc := models.Document{
		AccountID:   sess.OwnerID,
		Name:        sess.FileName,
		StoragePath: saveResult.Path,
		Size:        saveResult.Size,
		MimeType:    mimeType,
		Checksum:    checksum,
		Metadata:    datatypes.NewJSONType(sess.Metadata),
	}
	if err := a.db.WithContext(ctx).Create(&doc).Error; err != nil {
		a.backend.Delete(ctx, saveResult.Path)
		a.cleanup(claimed)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	a.cleanup(claimed)

	logger.Info("upload completed",
		"upload_id", sessionID,
		"document_id", doc.ID,
		"filename", sess.FileName,
		"size", saveResult.Size,
		"checksum", checksum,
	)
	return &doc, nil
}

// Cancel deletes every stored chunk and removes the session. Cancelling an
// unknown session, or someone else's session, is a no-op.
func (a *Assembler) Cancel(ctx context.Context, sessionID string, ownerID uint) {
	if sess, ok := a.store.Snapshot(sessionID); !ok || sess.OwnerID != ownerID {
		return
	}
	sess, ok := a.store.Remove(sessionID)
	if !ok {
		return
	}
	metrics.UploadSessionsActive.Set(float64(a.store.Len()))
	a.cleanup(sess)
	logger.Info("upload cancelled", "upload_id", sessionID, "owner_id", sess.OwnerID)
}

// SweepExpired reclaims sessions older than maxAge, performing the same
// cleanup as Cancel. Returns the number of sessions swept. Safe to run
// concurrently with in-flight uploads; a session being completed at the
// same moment is claimed by whichever side removes it first.
func (a *Assembler) SweepExpired(maxAge time.Duration) int {
	swept := 0
	for _, id := range a.store.ExpiredIDs(maxAge) {
		sess, ok := a.store.Remove(id)
		if !ok {
			continue
		}
		a.cleanup(sess)
		swept++
		logger.Info("swept expired upload session",
			"upload_id", id,
			"owner_id", sess.OwnerID,
			"age", time.Since(sess.CreatedAt).Round(time.Second),
		)
	}
	if swept > 0 {
		metrics.UploadSessionsSwept.Add(float64(swept))
		metrics.UploadSessionsActive.Set(float64(a.store.Len()))
	}
	return swept
}

// RunSweeper runs SweepExpired on a fixed interval until ctx is cancelled.
func (a *Assembler) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.SweepExpired(maxAge)
		}
	}
}

// cleanup removes every chunk file and the session directory. Deletion
// errors are logged and swallowed; cleanup never fails a request.
func (a *Assembler) cleanup(sess Session) {
	for index, ref := range sess.Chunks {
		if err := os.Remove(ref.Path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove chunk file",
				"error", err,
				"upload_id", sess.ID,
				"chunk", index,
			)
		}
	}
	if err := os.RemoveAll(sess.TempDir); err != nil {
		logger.Error("failed to remove session directory",
			"error", err,
			"upload_id", sess.ID,
			"dir", sess.TempDir,
		)
	}
}
