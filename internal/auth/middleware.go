package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/docstash/docstash/internal/database/models"
)

type contextKey string

const AccountContextKey contextKey = "account"

// RequireAuth authenticates the bearer token and loads the active account
// into the request context. A missing token is 401; an invalid, expired, or
// wrong-type token is 403. The distinction matters to API clients, so don't
// collapse the two.
func RequireAuth(authenticator *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Access token required")
				return
			}

			accountID, err := authenticator.Authenticate(token)
			if err != nil {
				writeAuthError(w, http.StatusForbidden, "Invalid or expired token")
				return
			}

			account, err := authenticator.Account(r.Context(), accountID)
			if err != nil {
				writeAuthError(w, http.StatusForbidden, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccount returns the authenticated account from the request context,
// or nil if the request was not authenticated.
func GetAccount(r *http.Request) *models.Account {
	account, _ := r.Context().Value(AccountContextKey).(*models.Account)
	return account
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
