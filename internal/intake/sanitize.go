package intake

import (
	"strings"
	"sync"
	"time"
)

// maxBaseNameLength bounds the sanitized base so full paths stay well under
// filesystem limits.
const maxBaseNameLength = 100

// SanitizeBaseName folds a client-supplied base name (extension already
// stripped) into the character class [A-Za-z0-9_]: every other rune becomes
// an underscore, runs collapse to one, edges are trimmed, and the result is
// capped at 100 characters. Path separators and traversal sequences cannot
// survive the fold.
func SanitizeBaseName(name string) string {
	var b strings.Builder
	lastUnderscore := false

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	safe := strings.Trim(b.String(), "_")
	if len(safe) > maxBaseNameLength {
		safe = strings.Trim(safe[:maxBaseNameLength], "_")
	}
	if safe == "" {
		safe = "file"
	}
	return safe
}

var (
	stampMu   sync.Mutex
	lastStamp int64
)

// nextStamp returns the current time in Unix milliseconds, bumped forward
// when the clock has not advanced since the previous call. Two uploads in
// the same millisecond therefore still get distinct names.
func nextStamp() int64 {
	stampMu.Lock()
	defer stampMu.Unlock()

	now := time.Now().UnixMilli()
	if now <= lastStamp {
		now = lastStamp + 1
	}
	lastStamp = now
	return now
}
