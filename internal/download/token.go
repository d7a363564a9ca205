// Package download mints and redeems the expiring tokens that gate access to
// finished files. Tokens are bearer credentials: possession is the only
// authentication, so they carry 256 bits of entropy and a hard expiry.
package download

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy of a download token. Hex-encoded it yields the
// 64-character opaque string stored on the job row.
const tokenBytes = 32

// NewToken returns a fresh random download token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("download: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
