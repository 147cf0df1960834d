package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// Fingerprint derives a stable anonymous identity for a caller with no
// cookie: a hash over client IP, user agent and accept-language.
func Fingerprint(clientIP string, r *http.Request) string {
	data := fmt.Sprintf("%s|%s|%s", clientIP, r.UserAgent(), r.Header.Get("Accept-Language"))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// NewCookieToken returns a 128-hex-char opaque session cookie token.
func NewCookieToken() (string, error) {
	return randomHex(64)
}

// NewSecureToken returns a 64-hex-char capability token for cached audio.
func NewSecureToken() (string, error) {
	return randomHex(32)
}

func randomHex(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
