package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestMemoryBackendSaveAndOpen(t *testing.T) {
	backend := NewMemoryBackend()
	content := []byte("in-memory content")

	result, err := backend.Save(context.Background(), bytes.NewReader(content), SaveOptions{
		OriginalFilename: "notes.txt",
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), result.Size)
	}

	reader, err := backend.Open(context.Background(), result.Path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	readBack, _ := io.ReadAll(reader)
	if !bytes.Equal(readBack, content) {
		t.Errorf("Content mismatch: got %q", readBack)
	}
}

func TestMemoryBackendDeleteIdempotent(t *testing.T) {
	backend := NewMemoryBackend()

	result, err := backend.Save(context.Background(), strings.NewReader("bytes"), SaveOptions{OriginalFilename: "a.txt"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := backend.Delete(context.Background(), result.Path); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := backend.Delete(context.Background(), result.Path); err != nil {
		t.Errorf("Expected idempotent delete, got %v", err)
	}
	if _, err := backend.Open(context.Background(), result.Path); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryBackendConcurrentSaves(t *testing.T) {
	backend := NewMemoryBackend()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := backend.Save(context.Background(), strings.NewReader("data"), SaveOptions{OriginalFilename: "f.bin"})
			if err != nil {
				t.Errorf("Concurrent save failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if count := backend.FileCount(); count != 10 {
		t.Errorf("Expected 10 files, got %d", count)
	}
}
