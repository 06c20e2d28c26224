package config

import (
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"5M", 5 * 1024 * 1024, false},
		{"5MB", 5 * 1024 * 1024, false},
		{"500K", 500 * 1024, false},
		{"1G", 1024 * 1024 * 1024, false},
		{"1.5G", 1536 * 1024 * 1024, false},
		{"1024", 1024, false},
		{"100B", 100, false},
		{"2T", 2 * 1024 * 1024 * 1024 * 1024, false},
		{" 5m ", 5 * 1024 * 1024, false},
		{"abc", 0, true},
		{"5X", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSize(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSize(%q) failed: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxUploadSize != 5*1024*1024 {
		t.Errorf("Expected 5MiB default upload size, got %d", cfg.MaxUploadSize)
	}
	if cfg.MaxLoginAttempts != 5 {
		t.Errorf("Expected 5 login attempts, got %d", cfg.MaxLoginAttempts)
	}
	if cfg.LockoutDuration != 30*time.Minute {
		t.Errorf("Expected 30m lockout, got %v", cfg.LockoutDuration)
	}
	if cfg.AccessTokenTTL != 24*time.Hour {
		t.Errorf("Expected 24h access TTL, got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 168*time.Hour {
		t.Errorf("Expected 168h refresh TTL, got %v", cfg.RefreshTokenTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("Expected bcrypt cost 12, got %d", cfg.BcryptCost)
	}
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error for default JWT secret in production")
	}

	t.Setenv("JWT_SECRET", "a-real-secret")
	if _, err := Load(); err != nil {
		t.Errorf("Expected load to succeed with explicit secret, got %v", err)
	}
}
