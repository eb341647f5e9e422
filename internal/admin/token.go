package admin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("admin_invalid_token")
	ErrTokenExpired = errors.New("admin_token_expired")
)

// ActionToken is a pre-authorized admin operation. Tokens are minted by
// the back office, signed with the shared action secret and handed to
// operators, so the API never needs operator credentials of its own.
type ActionToken struct {
	Action    string   `json:"action"`
	TargetIDs []string `json:"target_ids"`
	ExpiresAt int64    `json:"expires_at"`
}

// SignToken serializes and signs a token as payload.signature with
// url-safe base64 payload and hex HMAC-SHA256 signature.
func SignToken(secret string, token ActionToken) (string, error) {
	payload, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + sign(secret, encoded), nil
}

func VerifyToken(secret, raw string, now time.Time) (*ActionToken, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(sign(secret, parts[0])), []byte(parts[1])) {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var token ActionToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, ErrInvalidToken
	}
	if token.Action == "" || len(token.TargetIDs) == 0 {
		return nil, ErrInvalidToken
	}
	if token.ExpiresAt <= now.Unix() {
		return nil, ErrTokenExpired
	}
	return &token, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
