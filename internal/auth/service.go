package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/docstash/docstash/internal/config"
	"github.com/docstash/docstash/internal/database/models"
	"github.com/docstash/docstash/internal/logger"
	"github.com/docstash/docstash/internal/metrics"
	"gorm.io/gorm"
)

// Authenticator verifies credentials, maintains per-account failed-attempt
// counters and time-boxed lockouts, and issues access/refresh token pairs.
type Authenticator struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewAuthenticator(db *gorm.DB, cfg *config.Config) *Authenticator {
	return &Authenticator{db: db, cfg: cfg}
}

// normalizeEmail lowercases and trims an email so lookups and the unique
// index agree on case-insensitive equality.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validRegistration checks the registration constraints and returns
// field-level detail for anything violated.
func validRegistration(email, password, name, role string) *ValidationError {
	fields := make(map[string]string)

	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if reason, ok := CheckPasswordPolicy(password); !ok {
		fields["password"] = reason
	}
	if n := len(strings.TrimSpace(name)); n < 2 || n > 50 {
		fields["name"] = "must be between 2 and 50 characters"
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		fields["role"] = "must be either admin or user"
	}

	if len(fields) > 0 {
		return newValidationError(fields)
	}
	return nil
}

// Register creates an account and issues its first token pair.
func (a *Authenticator) Register(ctx context.Context, email, password, name, role string) (*models.Account, *TokenPair, error) {
	email = normalizeEmail(email)
	if verr := validRegistration(email, password, name, role); verr != nil {
		return nil, nil, verr
	}

	var existing models.Account
	err := a.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	hash, err := HashPassword(password, a.cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}

	account := models.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         role,
		IsActive:     true,
	}
	if err := a.db.WithContext(ctx).Create(&account).Error; err != nil {
		// The unique index is the authority; the lookup above only
		// gives a friendlier fast path.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}

	pair, err := a.issueTokenPair(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("account registered", "account_id", account.ID, "role", account.Role)
	return &account, pair, nil
}

// Login authenticates an email/password pair.
//
// The steps run strictly in order: lookup, lockout check, password check.
// The lockout check happens before the bcrypt comparison so a locked-out
// caller cannot probe password correctness via response timing, and no CPU
// is burned hashing during an active lockout.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*models.Account, *TokenPair, error) {
	email = normalizeEmail(email)

	var account models.Account
	err := a.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", email, true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Same error as a wrong password, so responses don't
			// disclose which emails exist.
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	now := time.Now()
	if account.LockedUntil != nil {
		if now.Before(*account.LockedUntil) {
			return nil, nil, ErrAccountLocked
		}
		// The lockout has expired, so this attempt is evaluated against a
		// clean slate. A wrong password here starts counting from one, not
		// from the stale pre-lockout total. Persisted by whichever update
		// below runs.
		account.FailedLoginAttempts = 0
		account.LockedUntil = nil
	}

	if !VerifyPassword(account.PasswordHash, password) {
		attempts := account.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= a.cfg.MaxLoginAttempts {
			until := now.Add(a.cfg.LockoutDuration)
			lockedUntil = &until
		}

		// Concurrent logins racing on this counter may lose an
		// increment; single-row durability is all we guarantee.
		updateErr := a.db.WithContext(ctx).Model(&account).Updates(map[string]interface{}{
			"failed_login_attempts": attempts,
			"locked_until":          lockedUntil,
		}).Error
		if updateErr != nil {
			return nil, nil, updateErr
		}

		if lockedUntil != nil {
			metrics.AccountLockouts.Inc()
			logger.Warn("account locked after repeated failures",
				"account_id", account.ID,
				"attempts", attempts,
				"locked_until", lockedUntil,
			)
		}
		return nil, nil, ErrInvalidCredentials
	}

	// Success clears the lockout dimension entirely.
	if err := a.db.WithContext(ctx).Model(&account).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
	}).Error; err != nil {
		return nil, nil, err
	}
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	pair, err := a.issueTokenPair(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	return &account, pair, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated. All verification and lookup failures
// collapse into ErrInvalidToken.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := ParseToken(refreshToken, []byte(a.cfg.JWTSecret))
	if err != nil {
		return "", 0, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", 0, ErrInvalidToken
	}

	var record models.RefreshToken
	err = a.db.WithContext(ctx).
		Where("token = ? AND is_revoked = ? AND expires_at > ?", refreshToken, false, time.Now()).
		First(&record).Error
	if err != nil {
		return "", 0, ErrInvalidToken
	}

	accessToken, err := GenerateToken(record.AccountID, TokenTypeAccess, []byte(a.cfg.JWTSecret), a.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return accessToken, int64(a.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout revokes the matching refresh record if present. Idempotent: an
// unknown token is not an error.
func (a *Authenticator) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return a.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ?", refreshToken).
		Update("is_revoked", true).Error
}

// Authenticate verifies a bearer access token and returns the account id it
// is bound to. Refresh tokens are never accepted here.
func (a *Authenticator) Authenticate(bearerToken string) (uint, error) {
	claims, err := ParseToken(bearerToken, []byte(a.cfg.JWTSecret))
	if err != nil {
		return 0, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess {
		return 0, ErrInvalidToken
	}
	return claims.AccountID, nil
}

// Account fetches an active account by id.
func (a *Authenticator) Account(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := a.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateName changes the account's display name.
func (a *Authenticator) UpdateName(ctx context.Context, id uint, name string) (*models.Account, error) {
	if n := len(strings.TrimSpace(name)); n < 2 || n > 50 {
		return nil, newValidationError(map[string]string{
			"name": "must be between 2 and 50 characters",
		})
	}

	if err := a.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("name", strings.TrimSpace(name)).Error; err != nil {
		return nil, err
	}
	return a.Account(ctx, id)
}

// issueTokenPair mints an access/refresh pair and persists the refresh
// record so it can be revoked later.
func (a *Authenticator) issueTokenPair(ctx context.Context, accountID uint) (*TokenPair, error) {
	secret := []byte(a.cfg.JWTSecret)

	accessToken, err := GenerateToken(accountID, TokenTypeAccess, secret, a.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, err := GenerateToken(accountID, TokenTypeRefresh, secret, a.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	record := models.RefreshToken{
		AccountID: accountID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(a.cfg.RefreshTokenTTL),
	}
	if err := a.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(a.cfg.AccessTokenTTL.Seconds()),
	}, nil
}
