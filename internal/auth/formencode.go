package auth

import (
	"sort"
	"strings"
)

// isUnreserved reports whether b is an RFC 3986 unreserved character
// (A-Za-z0-9-._~), which passes through percent-encoding untouched.
func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	}
	return false
}

const hexDigits = "0123456789ABCDEF"

// percentEncode encodes s per RFC 3986: unreserved ASCII characters pass
// through; everything else (including '%', '+', '=', '&', space, and
// non-ASCII) is percent-encoded from its UTF-8 bytes.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

// EncodeForm builds an application/x-www-form-urlencoded body from pairs,
// sorted by key for deterministic output. Empty values yield "key=".
func EncodeForm(pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+"="+percentEncode(pairs[k]))
	}
	return strings.Join(parts, "&")
}
