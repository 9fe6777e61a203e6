package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseClaims(t *testing.T) {
	exp := time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)
	token := signToken(t, jwt.MapClaims{
		"id":         "user-17",
		"email":      "ops@stayspot.io",
		"role":       "property_manager",
		"company_id": "company-3",
		"exp":        exp.Unix(),
	})

	c, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims failed: %v", err)
	}

	if c.UserID != "user-17" {
		t.Errorf("UserID = %q, want user-17", c.UserID)
	}
	if c.CompanyID != "company-3" {
		t.Errorf("CompanyID = %q, want company-3", c.CompanyID)
	}
	if c.Email != "ops@stayspot.io" || c.Role != "property_manager" {
		t.Errorf("Email/Role = %q/%q", c.Email, c.Role)
	}
	if !c.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, exp)
	}
	if c.Expired(exp.Add(-time.Minute)) {
		t.Error("Expired() = true before exp")
	}
	if !c.Expired(exp) {
		t.Error("Expired() = false at exp")
	}
}

func TestParseClaimsNumericID(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"id": 42, "companyId": "c-1"})

	c, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims failed: %v", err)
	}
	if c.UserID != "42" {
		t.Errorf("UserID = %q, want 42", c.UserID)
	}
	if !c.ExpiresAt.IsZero() || c.Expired(time.Now()) {
		t.Error("token without exp reported an expiry")
	}
}

func TestParseClaimsOpaqueToken(t *testing.T) {
	if _, err := ParseClaims("not-a-jwt"); err == nil {
		t.Error("ParseClaims() expected error for opaque token")
	}
}

func TestLoadCredentials(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"id": "user-17", "company_id": "company-3"})

	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte(token+"\n"), 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	t.Setenv("TEST_STAYSPOT_TOKEN", token)

	tests := []struct {
		name        string
		src         Source
		wantUser    string
		wantCompany string
		wantErr     error
	}{
		{
			name:        "inline token with claims",
			src:         Source{Token: token},
			wantUser:    "user-17",
			wantCompany: "company-3",
		},
		{
			name:        "env token",
			src:         Source{TokenEnv: "TEST_STAYSPOT_TOKEN"},
			wantUser:    "user-17",
			wantCompany: "company-3",
		},
		{
			name:        "file token with override",
			src:         Source{TokenFile: tokenFile, UserID: "override"},
			wantUser:    "override",
			wantCompany: "company-3",
		},
		{
			name:        "opaque token keeps configured ids",
			src:         Source{Token: "opaque", CompanyID: "company-9"},
			wantUser:    "",
			wantCompany: "company-9",
		},
		{
			name:    "empty token file",
			src:     Source{TokenFile: emptyFile},
			wantErr: ErrNoToken,
		},
		{
			name:    "unset env",
			src:     Source{TokenEnv: "TEST_STAYSPOT_TOKEN_UNSET"},
			wantErr: ErrNoToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := LoadCredentials(tt.src)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("LoadCredentials() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadCredentials() unexpected error: %v", err)
			}
			if creds.Token == "" {
				t.Error("Token is empty")
			}
			if creds.UserID != tt.wantUser {
				t.Errorf("UserID = %q, want %q", creds.UserID, tt.wantUser)
			}
			if creds.CompanyID != tt.wantCompany {
				t.Errorf("CompanyID = %q, want %q", creds.CompanyID, tt.wantCompany)
			}
		})
	}
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	_, err := LoadCredentials(Source{TokenFile: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Error("LoadCredentials() expected error for missing token file")
	}
}
