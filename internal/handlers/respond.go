package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docstash/docstash/internal/auth"
	"github.com/docstash/docstash/internal/logger"
	"github.com/docstash/docstash/internal/upload"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondDomainError maps authenticator and assembler errors onto HTTP
// status codes. Anything unrecognized becomes a generic 500; internal
// detail never reaches the client.
func respondDomainError(w http.ResponseWriter, err error) {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": verr.Fields,
		})
		return
	}

	var incomplete *upload.IncompleteUploadError
	if errors.As(err, &incomplete) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":        "Upload incomplete",
			"missingChunk": incomplete.MissingIndex,
		})
		return
	}

	var rangeErr *upload.ChunkRangeError
	if errors.As(err, &rangeErr) {
		respondError(w, http.StatusBadRequest, rangeErr.Error())
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, auth.ErrAccountLocked):
		respondError(w, http.StatusLocked, "Account temporarily locked due to too many failed attempts")
	case errors.Is(err, auth.ErrEmailTaken):
		respondError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, auth.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, upload.ErrInvalidParams):
		respondError(w, http.StatusBadRequest, "Invalid upload parameters")
	case errors.Is(err, upload.ErrSessionNotFound):
		respondError(w, http.StatusBadRequest, "Invalid upload session")
	case errors.Is(err, upload.ErrFileTooLarge):
		respondError(w, http.StatusBadRequest, "File size exceeds limit")
	default:
		logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
