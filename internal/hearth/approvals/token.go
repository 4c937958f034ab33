package approvals

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes of entropy gives a 43-character URL-safe token.
const tokenBytes = 32

func newToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
