package models

import (
	"time"

	"gorm.io/datatypes"
)

// Account roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Account struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string `gorm:"not null;size:255" json:"-"`
	Name         string `gorm:"not null;size:50" json:"name"`
	Role         string `gorm:"not null;size:10;default:'user'" json:"role"`
	IsActive     bool   `gorm:"not null;default:true" json:"is_active"`

	// Lockout state. FailedLoginAttempts resets to zero on any successful
	// login; LockedUntil is nil unless a lockout is in force.
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	RefreshTokens []RefreshToken `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	Documents     []Document     `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

// RefreshToken is a revocable credential used solely to mint new access
// tokens. Usable iff not revoked and not expired.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;index" json:"account_id"`
	Token     string    `gorm:"uniqueIndex;not null;size:512" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	IsRevoked bool      `gorm:"not null;default:false" json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`

	Account Account `gorm:"foreignKey:AccountID" json:"-"`
}

type Document struct {
	ID uint `gorm:"primaryKey" json:"id"`

	AccountID uint `gorm:"not null;index" json:"account_id"`

	// Name is the original filename; StoragePath is the UUID-based path
	// inside the storage backend.
	Name        string `gorm:"not null;size:255" json:"name"`
	StoragePath string `gorm:"not null;size:1024" json:"-"`

	Size     int64  `gorm:"not null" json:"size"`
	MimeType string `gorm:"size:100" json:"mime_type"`

	// Checksum is the hex SHA-256 over the stored bytes.
	Checksum string                                `gorm:"size:64;index" json:"checksum"`
	Metadata datatypes.JSONType[map[string]string] `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Account Account `gorm:"foreignKey:AccountID" json:"-"`
}
