// Package namecodec derives deterministic, filesystem- and tmux-safe names
// from display strings: tmux session names for (repo, branch) pairs, and
// slugs for category names, repo names, and branch names. Every function
// here is pure; collision disambiguation against persisted state is the
// Orchestrator's job, not this package's.
package namecodec

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/opencode-kanban/okb/internal/constants"
)

var (
	invalidSessionChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	dashRun            = regexp.MustCompile(`-+`)
	invalidSlugChar    = regexp.MustCompile(`[^a-z0-9]+`)
)

// SessionName derives the base tmux session name for (repoName, branch),
// before any numeric collision suffix is applied. It follows §4.B of the
// spec: prefix, sanitize, collapse, trim, truncate-with-hash.
func SessionName(repoName, branch string) string {
	raw := constants.SessionNamePrefix + "-" + repoName + "-" + branch
	sanitized := sanitize(raw)

	if len(sanitized) <= constants.MaxSessionNameBytes {
		return sanitized
	}

	sum := sha256.Sum256([]byte(sanitized))
	suffix := "-" + hex.EncodeToString(sum[:])[:8]
	cut := constants.MaxSessionNameBytes - len(suffix)
	if cut < 0 {
		cut = 0
	}
	truncated := truncateBytes(sanitized, cut)
	truncated = strings.TrimRight(truncated, "-")
	return truncated + suffix
}

// WithSuffix appends a numeric disambiguator as described in spec §4.B
// step 5 ("-2", "-3", ...). k must be >= 2; k == 1 returns base unchanged.
func WithSuffix(base string, k int) string {
	if k <= 1 {
		return base
	}
	suffix := "-" + strconv.Itoa(k)
	cut := constants.MaxSessionNameBytes - len(suffix)
	if cut < 0 {
		cut = 0
	}
	trimmed := truncateBytes(base, cut)
	trimmed = strings.TrimRight(trimmed, "-")
	return trimmed + suffix
}

// Slug derives a lowercase, hyphenated, script-stable token from a display
// name (category name, repo name, or branch name). Returns "" if the input
// has no alphanumeric content at all; callers must treat that as an error.
func Slug(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	replaced := invalidSlugChar.ReplaceAllString(lower, "-")
	return strings.Trim(replaced, "-")
}

func sanitize(s string) string {
	replaced := invalidSessionChar.ReplaceAllString(s, "-")
	collapsed := dashRun.ReplaceAllString(replaced, "-")
	return strings.Trim(collapsed, "-")
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8
// sequence in the middle.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	b := []byte(s)[:n]
	for len(b) > 0 && !isUTF8Boundary(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}

func isUTF8Boundary(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	last := b[len(b)-1]
	return last&0xC0 != 0x80
}
