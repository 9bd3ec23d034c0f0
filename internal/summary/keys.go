package summary

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// KeyPrefix starts every summary key.
	KeyPrefix = "convo-summary-"

	// fallbackSegment replaces conversation ids that sanitize to nothing.
	fallbackSegment = "conversation"
)

var trailingIndex = regexp.MustCompile(`-(\d+)$`)

// Sanitize maps an arbitrary conversation id onto [a-z0-9_-]+. Distinct ids
// may collide; colliding ids share one key namespace.
func Sanitize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	dash := false
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallbackSegment
	}
	return out
}

// Prefix returns the key namespace of a conversation.
func Prefix(conversationID string) string {
	return KeyPrefix + Sanitize(conversationID)
}

// Key returns the storage key of the index-th summary of a conversation.
func Key(conversationID string, index int) string {
	return Prefix(conversationID) + "-" + strconv.Itoa(index)
}

// ExtractIndex parses the trailing -<digits> suffix of key.
func ExtractIndex(key string) (int, bool) {
	m := trailingIndex.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasPrefix reports whether key belongs to the namespace prefix: either the
// prefix itself or prefix + "-" + anything.
func HasPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+"-")
}
