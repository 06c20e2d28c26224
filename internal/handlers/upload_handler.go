package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/docstash/docstash/internal/auth"
	"github.com/docstash/docstash/internal/config"
	"github.com/docstash/docstash/internal/metrics"
	"github.com/docstash/docstash/internal/upload"
	"github.com/go-chi/chi/v5"
)

// UploadHandler exposes the chunked upload protocol: init a session, send
// chunks in any order, then complete (or cancel).
type UploadHandler struct {
	assembler *upload.Assembler
	cfg       *config.Config
}

func NewUploadHandler(assembler *upload.Assembler, cfg *config.Config) *UploadHandler {
	return &UploadHandler{assembler: assembler, cfg: cfg}
}

type initUploadRequest struct {
	FileName    string            `json:"fileName"`
	FileSize    int64             `json:"fileSize"`
	TotalChunks int               `json:"totalChunks"`
	Metadata    map[string]string `json:"metadata"`
}

// Init opens a new chunked upload session.
func (h *UploadHandler) Init(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	var req initUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sessionID, err := h.assembler.Init(r.Context(), account.ID, req.FileName, req.FileSize, req.TotalChunks, req.Metadata)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"uploadId": sessionID})
}

// Chunk receives one chunk of an open session. Chunks may arrive in any
// order and resending an index overwrites the earlier copy.
func (h *UploadHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "Chunk too large")
		return
	}

	sessionID := r.FormValue("uploadId")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "uploadId is required")
		return
	}

	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "chunkIndex must be an integer")
		return
	}

	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No chunk uploaded")
		return
	}
	defer chunk.Close()

	if _, err := h.assembler.StoreChunk(r.Context(), sessionID, account.ID, index, chunk); err != nil {
		respondDomainError(w, err)
		return
	}

	metrics.ChunksReceived.Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"chunkIndex": index,
		"uploaded":   true,
	})
}

type completeUploadRequest struct {
	UploadID string `json:"uploadId"`
}

// Complete assembles all chunks, verifies nothing is missing, and stores
// the finished document.
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	var req completeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UploadID == "" {
		respondError(w, http.StatusBadRequest, "uploadId is required")
		return
	}

	doc, err := h.assembler.Complete(r.Context(), req.UploadID, account.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	metrics.DocumentsUploaded.WithLabelValues("chunked").Inc()
	respondJSON(w, http.StatusOK, documentSummary(doc))
}

// Cancel abandons a session and discards its chunks. Cancelling an unknown
// session is a no-op so retries are safe.
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	sessionID := chi.URLParam(r, "id")
	h.assembler.Cancel(r.Context(), sessionID, account.ID)

	respondJSON(w, http.StatusOK, map[string]string{"message": "Upload cancelled"})
}
