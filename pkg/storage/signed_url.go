package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenInvalid = errors.New("invalid download token")
	ErrTokenExpired = errors.New("download token expired")
)

// Grant is the content of a download token.
type Grant struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates HMAC-signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token granting access to path for the signer TTL.
func (s *SignedURLSigner) Generate(jobID, path string) (string, Grant, error) {
	if jobID == "" || path == "" {
		return "", Grant{}, fmt.Errorf("jobID and path required")
	}
	if len(s.secret) == 0 {
		return "", Grant{}, fmt.Errorf("signing secret missing")
	}
	grant := Grant{JobID: jobID, Path: path, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(path))
	expires := strconv.FormatInt(grant.ExpiresAt.Unix(), 10)
	token := strings.Join([]string{jobID, expires, encodedPath, s.sign(jobID, expires, encodedPath)}, ".")
	return token, grant, nil
}

// Parse validates a token. allowExpired skips the expiry check, for cleanup.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Grant{}, ErrTokenInvalid
	}
	jobID, expires, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(jobID, expires, encodedPath)), []byte(signature)) {
		return Grant{}, ErrTokenInvalid
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return Grant{}, ErrTokenInvalid
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return Grant{}, ErrTokenInvalid
	}

	grant := Grant{JobID: jobID, Path: string(rawPath), ExpiresAt: time.Unix(unix, 0)}
	if !allowExpired && s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) sign(jobID, expires, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(jobID + "|" + expires + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
