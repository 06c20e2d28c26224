package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docstash/docstash/internal/auth"
	"github.com/docstash/docstash/internal/config"
	"github.com/docstash/docstash/internal/database/models"
	"github.com/docstash/docstash/internal/logger"
	"github.com/docstash/docstash/internal/metrics"
	"github.com/docstash/docstash/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/maruel/natural"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// allowedMimeTypes is the upload allow-list: documents, spreadsheets,
// plain text, and common image formats.
var allowedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain": true,
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
}

// disallowedTypeError rejects uploads whose declared MIME type is not on
// the allow-list.
type disallowedTypeError struct {
	mimeType string
}

func (e *disallowedTypeError) Error() string {
	return fmt.Sprintf("file type %s is not allowed", e.mimeType)
}

type FileHandler struct {
	db      *gorm.DB
	cfg     *config.Config
	storage storage.Backend
}

func NewFileHandler(db *gorm.DB, cfg *config.Config, backend storage.Backend) *FileHandler {
	return &FileHandler{
		db:      db,
		cfg:     cfg,
		storage: backend,
	}
}

// Config returns the upload policy so clients can validate before sending.
func (h *FileHandler) Config(w http.ResponseWriter, r *http.Request) {
	allowed := make([]string, 0, len(allowedMimeTypes))
	for mimeType := range allowedMimeTypes {
		allowed = append(allowed, mimeType)
	}
	sort.Strings(allowed)

	respondJSON(w, http.StatusOK, map[string]any{
		"maxFileSize":       h.cfg.MaxUploadSize,
		"allowedTypes":      allowed,
		"maxFilesPerUpload": h.cfg.MaxFilesPerUpload,
	})
}

// documentSummary is the upload response shape shared by single, multiple,
// and chunked completion.
func documentSummary(doc *models.Document) map[string]any {
	return map[string]any{
		"id":       doc.ID,
		"name":     doc.Name,
		"size":     doc.Size,
		"checksum": doc.Checksum,
		"url":      fmt.Sprintf("/api/files/%d/download", doc.ID),
		"metadata": doc.Metadata.Data(),
	}
}

// parseMetadata decodes the optional free-form metadata form field.
func parseMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil
	}
	return metadata
}

// saveUpload validates one multipart file against the allow-list, stores it,
// and creates the document record.
func (h *FileHandler) saveUpload(r *http.Request, file multipart.File, header *multipart.FileHeader, ownerID uint, metadata map[string]string) (*models.Document, error) {
	mimeType := header.Header.Get("Content-Type")
	if !allowedMimeTypes[mimeType] {
		return nil, &disallowedTypeError{mimeType: mimeType}
	}

	saveResult, err := h.storage.Save(r.Context(), file, storage.SaveOptions{
		OriginalFilename: header.Filename,
		ContentType:      mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := models.Document{
		AccountID:   ownerID,
		Name:        header.Filename,
		StoragePath: saveResult.Path,
		Size:        saveResult.Size,
		MimeType:    mimeType,
		Checksum:    saveResult.Hash,
		Metadata:    datatypes.NewJSONType(metadata),
	}
	if err := h.db.WithContext(r.Context()).Create(&doc).Error; err != nil {
		h.storage.Delete(r.Context(), saveResult.Path)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}
	return &doc, nil
}

// Upload handles a single complete file sent in one multipart request.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "File too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	metadata := parseMetadata(r.FormValue("metadata"))
	doc, err := h.saveUpload(r, file, header, account.ID, metadata)
	if err != nil {
		var disallowed *disallowedTypeError
		if errors.As(err, &disallowed) {
			respondError(w, http.StatusBadRequest, disallowed.Error())
			return
		}
		respondDomainError(w, err)
		return
	}

	metrics.DocumentsUploaded.WithLabelValues("single").Inc()
	respondJSON(w, http.StatusOK, documentSummary(doc))
}

// UploadMultiple handles several complete files in one multipart request.
func (h *FileHandler) UploadMultiple(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	maxBody := h.cfg.MaxUploadSize * int64(h.cfg.MaxFilesPerUpload)
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxBody); err != nil {
		respondError(w, http.StatusBadRequest, "Upload too large")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	if len(files) > h.cfg.MaxFilesPerUpload {
		respondError(w, http.StatusBadRequest, "Too many files")
		return
	}

	metadata := parseMetadata(r.FormValue("metadata"))
	results := make([]map[string]any, 0, len(files))

	for _, header := range files {
		if header.Size > h.cfg.MaxUploadSize {
			respondError(w, http.StatusBadRequest, "File too large")
			return
		}

		file, err := header.Open()
		if err != nil {
			respondDomainError(w, err)
			return
		}

		doc, err := h.saveUpload(r, file, header, account.ID, metadata)
		file.Close()
		if err != nil {
			var disallowed *disallowedTypeError
			if errors.As(err, &disallowed) {
				respondError(w, http.StatusBadRequest, disallowed.Error())
				return
			}
			respondDomainError(w, err)
			return
		}

		metrics.DocumentsUploaded.WithLabelValues("multiple").Inc()
		results = append(results, documentSummary(doc))
	}

	respondJSON(w, http.StatusOK, map[string]any{"files": results})
}

// findDocument loads a document by URL id, scoped to what the account may
// see: admins see everything, everyone else only their own documents.
func (h *FileHandler) findDocument(r *http.Request, account *models.Account) (*models.Document, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}

	var doc models.Document
	query := h.db.WithContext(r.Context()).Where("id = ?", id)
	if account.Role != models.RoleAdmin {
		query = query.Where("account_id = ?", account.ID)
	}
	if err := query.First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// Download streams a stored document back to the client.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	doc, err := h.findDocument(r, account)
	if err != nil {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	reader, err := h.storage.Open(r.Context(), doc.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "File not found in storage")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to open file")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	safeFilename := strings.ReplaceAll(doc.Name, `"`, `\"`)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		safeFilename, url.PathEscape(doc.Name)))
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))

	if _, err := io.Copy(w, reader); err != nil {
		logger.Warn("error streaming file", "path", doc.StoragePath, "error", err)
	}
}

// Metadata returns a document's stored metadata including its checksum.
func (h *FileHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	doc, err := h.findDocument(r, account)
	if err != nil {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":         doc.ID,
		"name":       doc.Name,
		"size":       doc.Size,
		"type":       doc.MimeType,
		"uploadedBy": doc.AccountID,
		"createdAt":  doc.CreatedAt,
		"checksum":   doc.Checksum,
		"metadata":   doc.Metadata.Data(),
	})
}

// Delete removes a document and its backing file. Owners delete their own
// documents; admins delete anything.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	var doc models.Document
	if err := h.db.WithContext(r.Context()).First(&doc, id).Error; err != nil {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	if account.Role != models.RoleAdmin && doc.AccountID != account.ID {
		respondError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}

	if err := h.db.WithContext(r.Context()).Delete(&doc).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}

	// DB row is gone; a failed blob delete is logged, not surfaced.
	if err := h.storage.Delete(r.Context(), doc.StoragePath); err != nil {
		logger.Error("failed to delete file from storage", "path", doc.StoragePath, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

// escapeSQLLike escapes LIKE wildcards in user-supplied search terms.
func escapeSQLLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// Search filters documents by name substring, MIME type, size range, and
// creation date range. Non-admins only see their own documents.
func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	query := h.db.WithContext(r.Context()).Model(&models.Document{})
	if account.Role != models.RoleAdmin {
		query = query.Where("account_id = ?", account.ID)
	}

	if term := r.URL.Query().Get("query"); term != "" {
		query = query.Where("name LIKE ?", "%"+escapeSQLLike(term)+"%")
	}
	if mimeType := r.URL.Query().Get("type"); mimeType != "" {
		query = query.Where("mime_type = ?", mimeType)
	}
	if minSize := r.URL.Query().Get("min_size"); minSize != "" {
		if v, err := strconv.ParseInt(minSize, 10, 64); err == nil {
			query = query.Where("size >= ?", v)
		}
	}
	if maxSize := r.URL.Query().Get("max_size"); maxSize != "" {
		if v, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			query = query.Where("size <= ?", v)
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			query = query.Where("created_at >= ?", t)
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			query = query.Where("created_at <= ?", t)
		}
	}

	var docs []models.Document
	if err := query.Order("created_at DESC").Find(&docs).Error; err != nil {
		respondDomainError(w, err)
		return
	}

	// Humans expect "doc2" before "doc10"
	if r.URL.Query().Get("sort") == "name" {
		sort.Slice(docs, func(i, j int) bool {
			return natural.Less(docs[i].Name, docs[j].Name)
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"files": docs})
}

// List returns paginated documents, newest first.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	query := h.db.WithContext(r.Context()).Model(&models.Document{})
	if account.Role != models.RoleAdmin {
		query = query.Where("account_id = ?", account.ID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondDomainError(w, err)
		return
	}

	var docs []models.Document
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		respondDomainError(w, err)
		return
	}

	pages := (total + int64(limit) - 1) / int64(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"files": docs,
		"pagination": map[string]any{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": pages,
		},
	})
}
