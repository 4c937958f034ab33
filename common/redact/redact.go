// Package redact keeps confirmation tokens and API keys out of log output.
//
// A confirmation token is a bearer credential: anyone who sees it in a log
// line can confirm the pending write on the owner's behalf.  Log the
// fingerprint returned by Token instead.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const placeholder = "[REDACTED]"

// Token returns a short, stable fingerprint of a secret token suitable for
// correlating log lines ("tok:" + first 8 hex chars of its SHA-256).
// The empty string maps to "tok:none".
func Token(token string) string {
	if token == "" {
		return "tok:none"
	}
	sum := sha256.Sum256([]byte(token))
	return "tok:" + hex.EncodeToString(sum[:])[:8]
}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].  Values shorter than 4 characters are skipped.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}
