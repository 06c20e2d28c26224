package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docstash/docstash/internal/auth"
	"github.com/docstash/docstash/internal/metrics"
)

type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	account, tokens, err := h.authenticator.Register(r.Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		metrics.RegisterAttempts.WithLabelValues("failure").Inc()
		respondDomainError(w, err)
		return
	}

	metrics.RegisterAttempts.WithLabelValues("success").Inc()
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    account,
		"tokens":  tokens,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	account, tokens, err := h.authenticator.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			metrics.LoginAttempts.WithLabelValues("locked").Inc()
		default:
			metrics.LoginAttempts.WithLabelValues("failure").Inc()
		}
		respondDomainError(w, err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    account,
		"tokens":  tokens,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	accessToken, expiresIn, err := h.authenticator.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"accessToken": accessToken,
		"expiresIn":   expiresIn,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// Body is optional; logout without a refresh token is still a 200.
	var req RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.authenticator.Logout(r.Context(), req.RefreshToken); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": account})
}

type UpdateProfileRequest struct {
	Name string `json:"name"`
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r)
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	updated, err := h.authenticator.UpdateName(r.Context(), account.ID, req.Name)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    updated,
	})
}
