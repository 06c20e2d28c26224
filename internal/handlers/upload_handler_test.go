package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/docstash/docstash/internal/config"
	"github.com/docstash/docstash/internal/database/models"
	"github.com/docstash/docstash/internal/storage"
	"github.com/docstash/docstash/internal/upload"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

func setupUploadHandlerTest(t *testing.T) (*UploadHandler, *gorm.DB, *models.Account) {
	t.Helper()

	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: ":memory:"}, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.Document{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	account := &models.Account{
		Email:        "uploader@example.com",
		PasswordHash: "hash",
		Name:         "Uploader",
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	cfg := &config.Config{
		MaxUploadSize:     5 * 1024 * 1024,
		MaxFilesPerUpload: 10,
	}

	store := upload.NewSessionStore()
	assembler := upload.NewAssembler(db, store, storage.NewMemoryBackend(), t.TempDir(), cfg.MaxUploadSize)
	return NewUploadHandler(assembler, cfg), db, account
}

func initUploadSession(t *testing.T, handler *UploadHandler, account *models.Account, fileName string, fileSize int64, totalChunks int) string {
	t.Helper()

	w := httptest.NewRecorder()
	handler.Init(w, withAccount(jsonRequest(t, http.MethodPost, "/api/files/upload/init", initUploadRequest{
		FileName:    fileName,
		FileSize:    fileSize,
		TotalChunks: totalChunks,
	}), account))

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to init upload: %d %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	id, _ := resp["uploadId"].(string)
	if id == "" {
		t.Fatal("Expected an upload id")
	}
	return id
}

func sendChunk(t *testing.T, handler *UploadHandler, account *models.Account, sessionID string, index int, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("uploadId", sessionID)
	writer.WriteField("chunkIndex", strconv.Itoa(index))
	part, err := writer.CreateFormFile("chunk", "blob")
	if err != nil {
		t.Fatalf("Failed to create chunk part: %v", err)
	}
	part.Write(content)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/chunk", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	handler.Chunk(w, withAccount(req, account))
	return w
}

func completeUpload(t *testing.T, handler *UploadHandler, account *models.Account, sessionID string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	handler.Complete(w, withAccount(jsonRequest(t, http.MethodPost, "/api/files/upload/complete", completeUploadRequest{
		UploadID: sessionID,
	}), account))
	return w
}

func TestChunkedUploadFlow(t *testing.T) {
	handler, db, account := setupUploadHandlerTest(t)

	chunks := [][]byte{[]byte("first "), []byte("second "), []byte("third")}
	var full []byte
	for _, c := range chunks {
		full = append(full, c...)
	}

	sessionID := initUploadSession(t, handler, account, "assembled.txt", int64(len(full)), len(chunks))

	// Deliver out of order.
	for _, i := range []int{2, 0, 1} {
		w := sendChunk(t, handler, account, sessionID, i, chunks[i])
		if w.Code != http.StatusOK {
			t.Fatalf("Chunk %d: expected status 200, got %d: %s", i, w.Code, w.Body.String())
		}
		resp := decodeResponse(t, w)
		if resp["uploaded"] != true {
			t.Errorf("Chunk %d: expected uploaded=true, got %v", i, resp["uploaded"])
		}
	}

	w := completeUpload(t, handler, account, sessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decodeResponse(t, w)
	sum := sha256.Sum256(full)
	if resp["checksum"] != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum mismatch: got %v", resp["checksum"])
	}

	var doc models.Document
	if err := db.First(&doc).Error; err != nil {
		t.Fatalf("Expected a document record: %v", err)
	}
	if doc.AccountID != account.ID {
		t.Errorf("Expected document owned by %d, got %d", account.ID, doc.AccountID)
	}
	if doc.Size != int64(len(full)) {
		t.Errorf("Expected size %d, got %d", len(full), doc.Size)
	}
}

func TestChunkedUploadMissingChunk(t *testing.T) {
	handler, _, account := setupUploadHandlerTest(t)

	sessionID := initUploadSession(t, handler, account, "partial.txt", 9, 3)
	sendChunk(t, handler, account, sessionID, 0, []byte("aaa"))
	sendChunk(t, handler, account, sessionID, 2, []byte("ccc"))

	w := completeUpload(t, handler, account, sessionID)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if resp["missingChunk"].(float64) != 1 {
		t.Errorf("Expected missing chunk 1, got %v", resp["missingChunk"])
	}

	// Supply the gap and retry.
	sendChunk(t, handler, account, sessionID, 1, []byte("bbb"))
	if w := completeUpload(t, handler, account, sessionID); w.Code != http.StatusOK {
		t.Errorf("Expected completion after repair, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChunkedUploadOutOfRangeIndex(t *testing.T) {
	handler, _, account := setupUploadHandlerTest(t)

	sessionID := initUploadSession(t, handler, account, "doc.txt", 6, 2)
	w := sendChunk(t, handler, account, sessionID, 5, []byte("x"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for out-of-range index, got %d", w.Code)
	}
}

func TestChunkedUploadUnknownSession(t *testing.T) {
	handler, _, account := setupUploadHandlerTest(t)

	w := sendChunk(t, handler, account, "no-such-id", 0, []byte("x"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown session, got %d", w.Code)
	}

	w = completeUpload(t, handler, account, "no-such-id")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown session, got %d", w.Code)
	}
}

func TestChunkedUploadDoubleComplete(t *testing.T) {
	handler, db, account := setupUploadHandlerTest(t)

	sessionID := initUploadSession(t, handler, account, "once.txt", 3, 1)
	sendChunk(t, handler, account, sessionID, 0, []byte("abc"))

	if w := completeUpload(t, handler, account, sessionID); w.Code != http.StatusOK {
		t.Fatalf("Expected first completion to succeed, got %d", w.Code)
	}
	if w := completeUpload(t, handler, account, sessionID); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 on second completion, got %d", w.Code)
	}

	var count int64
	db.Model(&models.Document{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected exactly 1 document, got %d", count)
	}
}

func TestChunkedUploadCrossAccount(t *testing.T) {
	handler, db, account := setupUploadHandlerTest(t)

	intruder := &models.Account{
		Email:        "intruder@example.com",
		PasswordHash: "hash",
		Name:         "Intruder",
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := db.Create(intruder).Error; err != nil {
		t.Fatalf("Failed to create second account: %v", err)
	}

	sessionID := initUploadSession(t, handler, account, "private.txt", 6, 2)
	sendChunk(t, handler, account, sessionID, 0, []byte("aaa"))

	// Knowing the upload id is not enough to touch someone else's session.
	if w := sendChunk(t, handler, intruder, sessionID, 1, []byte("bbb")); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for another account's chunk, got %d", w.Code)
	}
	if w := completeUpload(t, handler, intruder, sessionID); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for another account's complete, got %d", w.Code)
	}

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/files/upload/"+sessionID+"/cancel", nil), "id", sessionID)
	w := httptest.NewRecorder()
	handler.Cancel(w, withAccount(req, intruder))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from cancel, got %d", w.Code)
	}

	// The owner's session is intact and still completes.
	sendChunk(t, handler, account, sessionID, 1, []byte("bbb"))
	if w := completeUpload(t, handler, account, sessionID); w.Code != http.StatusOK {
		t.Errorf("Expected owner completion to succeed, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChunkedUploadInitTooLarge(t *testing.T) {
	handler, _, account := setupUploadHandlerTest(t)

	w := httptest.NewRecorder()
	handler.Init(w, withAccount(jsonRequest(t, http.MethodPost, "/api/files/upload/init", initUploadRequest{
		FileName:    "huge.bin",
		FileSize:    100 * 1024 * 1024,
		TotalChunks: 20,
	}), account))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for oversized init, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChunkedUploadCancel(t *testing.T) {
	handler, _, account := setupUploadHandlerTest(t)

	sessionID := initUploadSession(t, handler, account, "doomed.txt", 3, 1)
	sendChunk(t, handler, account, sessionID, 0, []byte("abc"))

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/files/upload/"+sessionID+"/cancel", nil), "id", sessionID)
	w := httptest.NewRecorder()
	handler.Cancel(w, withAccount(req, account))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if w := completeUpload(t, handler, account, sessionID); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 after cancel, got %d", w.Code)
	}

	// Cancel is idempotent.
	req = withURLParam(httptest.NewRequest(http.MethodPost, "/api/files/upload/"+sessionID+"/cancel", nil), "id", sessionID)
	w = httptest.NewRecorder()
	handler.Cancel(w, withAccount(req, account))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on repeat cancel, got %d", w.Code)
	}
}
