// Package auth resolves the credentials presented on the realtime handshake.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rickgao/stayspot-realtime/internal/connection"
)

// ErrNoToken is returned when no source yields a token.
var ErrNoToken = errors.New("no authentication token configured")

// Source lists where credentials come from. The token is taken from Token,
// then the TokenEnv variable, then TokenFile.
type Source struct {
	Token     string
	TokenEnv  string
	TokenFile string
	UserID    string // Overrides the id claim
	CompanyID string // Overrides the company claim
}

// Claims are the identity fields carried by a StaySpot access token.
type Claims struct {
	UserID    string
	CompanyID string
	Email     string
	Role      string
	ExpiresAt time.Time // Zero when the token has no exp claim
}

// Expired reports whether the token expired before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// LoadCredentials resolves a token and fills user and company ids from the
// token claims when the source does not set them.
func LoadCredentials(src Source) (connection.Credentials, error) {
	token, err := resolveToken(src)
	if err != nil {
		return connection.Credentials{}, err
	}

	creds := connection.Credentials{
		Token:     token,
		UserID:    src.UserID,
		CompanyID: src.CompanyID,
	}
	if creds.UserID != "" && creds.CompanyID != "" {
		return creds, nil
	}

	claims, err := ParseClaims(token)
	if err != nil {
		// Opaque tokens are fine; the server is the authority.
		return creds, nil
	}
	if creds.UserID == "" {
		creds.UserID = claims.UserID
	}
	if creds.CompanyID == "" {
		creds.CompanyID = claims.CompanyID
	}
	return creds, nil
}

func resolveToken(src Source) (string, error) {
	if t := strings.TrimSpace(src.Token); t != "" {
		return t, nil
	}
	if src.TokenEnv != "" {
		if t := strings.TrimSpace(os.Getenv(src.TokenEnv)); t != "" {
			return t, nil
		}
	}
	if src.TokenFile != "" {
		data, err := os.ReadFile(src.TokenFile)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		if t := strings.TrimSpace(string(data)); t != "" {
			return t, nil
		}
		return "", fmt.Errorf("%w: token file %s is empty", ErrNoToken, src.TokenFile)
	}
	return "", ErrNoToken
}

// ParseClaims reads the claims of a JWT without verifying its signature.
// The server verifies the token; the client only needs the identity fields.
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	c := Claims{
		UserID:    claimString(mc, "id", "userId", "sub"),
		CompanyID: claimString(mc, "companyId", "company_id"),
		Email:     claimString(mc, "email"),
		Role:      claimString(mc, "role"),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// claimString returns the first present claim among keys, formatting
// numeric ids without a fraction.
func claimString(mc jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := mc[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
