package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const authCookie = "auth_token"

var ErrNoToken = errors.New("no token")

// Identity resolves the user behind an upgrade request from an HS256 token.
// Tokens come from the auth_token cookie or an Authorization bearer header.
type Identity struct {
	secret []byte
}

// NewIdentity returns a verifier for secret. With an empty secret every caller is a guest.
func NewIdentity(secret string) *Identity {
	return &Identity{secret: []byte(secret)}
}

// UserID returns the token subject. It returns ErrNoToken when the request carries none.
func (that *Identity) UserID(req *http.Request) (string, error) {
	raw := bearerToken(req)
	if raw == "" || len(that.secret) == 0 {
		return "", ErrNoToken
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return that.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to read subject: %w", err)
	}

	if subject == "" {
		return "", errors.New("token has no subject")
	}

	return subject, nil
}

func bearerToken(req *http.Request) string {
	if cookie, err := req.Cookie(authCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := req.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}
