package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docstash/docstash/internal/database/models"
	"github.com/docstash/docstash/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

func setupAssemblerTest(t *testing.T) (*Assembler, *SessionStore, *storage.MemoryBackend, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: ":memory:"}, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.Document{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	store := NewSessionStore()
	backend := storage.NewMemoryBackend()
	assembler := NewAssembler(db, store, backend, t.TempDir(), 5*1024*1024)

	return assembler, store, backend, db
}

func uploadChunks(t *testing.T, a *Assembler, sessionID string, order []int, chunks []string) {
	t.Helper()
	for _, i := range order {
		if _, err := a.StoreChunk(context.Background(), sessionID, 1, i, strings.NewReader(chunks[i])); err != nil {
			t.Fatalf("Failed to store chunk %d: %v", i, err)
		}
	}
}

func TestCompleteReassemblesOutOfOrderChunks(t *testing.T) {
	assembler, _, backend, _ := setupAssemblerTest(t)

	chunks := []string{"hello ", "chunked ", "world"}
	content := strings.Join(chunks, "")

	sessionID, err := assembler.Init(context.Background(), 1, "greeting.txt", int64(len(content)), len(chunks), map[string]string{"source": "test"})
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}

	uploadChunks(t, assembler, sessionID, []int{2, 0, 1}, chunks)

	doc, err := assembler.Complete(context.Background(), sessionID, 1)
	if err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	if doc.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), doc.Size)
	}
	if doc.MimeType != "text/plain; charset=utf-8" {
		t.Errorf("Unexpected mime type %q", doc.MimeType)
	}

	sum := sha256.Sum256([]byte(content))
	if doc.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum mismatch: got %s", doc.Checksum)
	}

	reader, err := backend.Open(context.Background(), doc.StoragePath)
	if err != nil {
		t.Fatalf("Failed to open stored file: %v", err)
	}
	defer reader.Close()
	stored, _ := io.ReadAll(reader)
	if !bytes.Equal(stored, []byte(content)) {
		t.Errorf("Stored content mismatch: got %q", stored)
	}

	if meta := doc.Metadata.Data(); meta["source"] != "test" {
		t.Errorf("Expected metadata to survive assembly, got %v", meta)
	}
}

func TestCompleteMissingChunk(t *testing.T) {
	assembler, store, _, _ := setupAssemblerTest(t)

	chunks := []string{"aaa", "bbb", "ccc"}
	sessionID, err := assembler.Init(context.Background(), 1, "doc.txt", 9, 3, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}

	uploadChunks(t, assembler, sessionID, []int{0, 2}, chunks)

	_, err = assembler.Complete(context.Background(), sessionID, 1)
	var incomplete *IncompleteUploadError
	if !errors.As(err, &incomplete) {
		t.Fatalf("Expected IncompleteUploadError, got %v", err)
	}
	if incomplete.MissingIndex != 1 {
		t.Errorf("Expected missing chunk 1, got %d", incomplete.MissingIndex)
	}

	// The session survives the failed completion so the client can repair it.
	if _, ok := store.Snapshot(sessionID); !ok {
		t.Fatal("Expected session to remain after incomplete completion")
	}

	uploadChunks(t, assembler, sessionID, []int{1}, chunks)
	if _, err := assembler.Complete(context.Background(), sessionID, 1); err != nil {
		t.Fatalf("Expected completion to succeed after repair, got %v", err)
	}
}

func TestCompleteConsumesSession(t *testing.T) {
	assembler, _, _, db := setupAssemblerTest(t)

	sessionID, err := assembler.Init(context.Background(), 1, "doc.txt", 3, 1, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}
	uploadChunks(t, assembler, sessionID, []int{0}, []string{"abc"})

	if _, err := assembler.Complete(context.Background(), sessionID, 1); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	// A second completion must not produce a duplicate document.
	if _, err := assembler.Complete(context.Background(), sessionID, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on second completion, got %v", err)
	}

	var count int64
	db.Model(&models.Document{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected exactly 1 document, got %d", count)
	}
}

func TestCompleteCleansUpTempFiles(t *testing.T) {
	assembler, store, _, _ := setupAssemblerTest(t)

	sessionID, err := assembler.Init(context.Background(), 1, "doc.txt", 6, 2, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}

	sess, _ := store.Snapshot(sessionID)
	uploadChunks(t, assembler, sessionID, []int{0, 1}, []string{"abc", "def"})

	if _, err := assembler.Complete(context.Background(), sessionID, 1); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	if _, err := os.Stat(sess.TempDir); !os.IsNotExist(err) {
		t.Errorf("Expected session temp dir to be removed, stat err: %v", err)
	}
}

func TestStoreChunkOutOfRange(t *testing.T) {
	assembler, _, _, _ := setupAssemblerTest(t)

	sessionID, err := assembler.Init(context.Background(), 1, "doc.txt", 6, 2, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}

	for _, index := range []int{-1, 2, 100} {
		_, err := assembler.StoreChunk(context.Background(), sessionID, 1, index, strings.NewReader("x"))
		var rangeErr *ChunkRangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("Index %d: expected ChunkRangeError, got %v", index, err)
		}
	}
}

func TestStoreChunkOverwrite(t *testing.T) {
	assembler, _, backend, _ := setupAssemblerTest(t)

	sessionID, err := assembler.Init(context.Background(), 1, "doc.txt", 6, 2, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}

	uploadChunks(t, assembler, sessionID, []int{0, 1}, []string{"old", "def"})
	// Retrying chunk 0 replaces the earlier bytes.
	uploadChunks(t, assembler, sessionID, []int{0}, []string{"abc"})

	doc, err := assembler.Complete(context.Background(), sessionID, 1)
	if err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	reader, err := backend.Open(context.Background(), doc.StoragePath)
	if err != nil {
		t.Fatalf("Failed to open stored file: %v", err)
	}
	defer reader.Close()
	stored, _ := io.ReadAll(reader)
	if string(stored) != "abcdef" {
		t.Errorf("Expected overwritten chunk in assembly, got %q", stored)
	}
}

func TestStoreChunkUnknownSession(t *testing.T) {
	assembler, _, _, _ := setupAssemblerTest(t)

	if _, err := assembler.StoreChunk(context.Background(), "no-such-session", 1, 0, strings.NewReader("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestInitRejectsBadParameters(t *testing.T) {
	assembler, _, _, _ := setupAssemblerTest(t)

	if _, err := assembler.Init(context.Background(), 1, "", 10, 2, nil); err == nil {
		t.Error("Expected error for empty filename")
	}
	if _, err := assembler.Init(context.Background(), 1, "doc.txt", 0, 2, nil); err == nil {
		t.Error("Expected error for zero size")
	}
	if _, err := assembler.Init(context.Background(), 1, "doc.txt", 10, 0, nil); err == nil {
		t.Error("Expected error for zero chunks")
	}
	if _, err := assembler.Init(context.Background(), 1, "doc.txt", 10*1024*1024, 3, nil); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	assembler, store, _, _ := setupAssemblerTest(t)

	sessionID, err := assembler.Init(context.Background(), 1, "doc.txt", 3, 1, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}
	uploadChunks(t, assembler, sessionID, []int{0}, []string{"abc"})
	sess, _ := store.Snapshot(sessionID)

	assembler.Cancel(context.Background(), sessionID, 1)

	if _, ok := store.Snapshot(sessionID); ok {
		t.Error("Expected session to be removed after cancel")
	}
	if _, err := os.Stat(sess.TempDir); !os.IsNotExist(err) {
		t.Errorf("Expected temp dir removal, stat err: %v", err)
	}
	if _, err := assembler.Complete(context.Background(), sessionID, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after cancel, got %v", err)
	}

	// Cancelling again is a no-op.
	assembler.Cancel(context.Background(), sessionID, 1)
}

func TestSessionOwnership(t *testing.T) {
	assembler, store, _, _ := setupAssemblerTest(t)

	sessionID, err := assembler.Init(context.Background(), 1, "doc.txt", 3, 1, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}
	uploadChunks(t, assembler, sessionID, []int{0}, []string{"abc"})

	if _, err := assembler.StoreChunk(context.Background(), sessionID, 2, 0, strings.NewReader("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for another account's chunk, got %v", err)
	}
	if _, err := assembler.Complete(context.Background(), sessionID, 2); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for another account's complete, got %v", err)
	}

	// A cancel by another account leaves the session untouched.
	assembler.Cancel(context.Background(), sessionID, 2)
	if _, ok := store.Snapshot(sessionID); !ok {
		t.Fatal("Expected session to survive a cancel by another account")
	}

	doc, err := assembler.Complete(context.Background(), sessionID, 1)
	if err != nil {
		t.Fatalf("Failed to complete as the owner: %v", err)
	}
	if doc.AccountID != 1 {
		t.Errorf("Expected document owned by account 1, got %d", doc.AccountID)
	}
}

func TestSweepExpired(t *testing.T) {
	assembler, store, _, _ := setupAssemblerTest(t)

	oldID, err := assembler.Init(context.Background(), 1, "old.txt", 3, 1, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}
	freshID, err := assembler.Init(context.Background(), 1, "fresh.txt", 3, 1, nil)
	if err != nil {
		t.Fatalf("Failed to init session: %v", err)
	}
	uploadChunks(t, assembler, oldID, []int{0}, []string{"abc"})

	// Age the first session past the cutoff.
	store.mu.Lock()
	store.sessions[oldID].CreatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	if swept := assembler.SweepExpired(time.Hour); swept != 1 {
		t.Errorf("Expected 1 swept session, got %d", swept)
	}

	if _, ok := store.Snapshot(oldID); ok {
		t.Error("Expected old session to be swept")
	}
	if _, ok := store.Snapshot(freshID); !ok {
		t.Error("Expected fresh session to survive the sweep")
	}
}
