package cache

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// memcached rejects keys over 250 bytes or containing whitespace/control
// bytes; stay well under that so prefixes fit too.
const maxIDLen = 200

// Key builds a backend-safe cache key for an entity id within a kind.
// Ids that a backend cannot store verbatim are replaced by a hash.
func Key(kind, id string) string {
	if len(id) <= maxIDLen && safeASCII(id) {
		return kind + ":" + id
	}
	return kind + ":h:" + strconv.FormatUint(xxh3.HashString(id), 16)
}

// backendKey re-checks an already composed key against backend limits;
// memcached in particular rejects long or non-ASCII keys.
func backendKey(key string) string {
	if len(key) <= maxIDLen && safeASCII(key) {
		return key
	}
	return "h:" + strconv.FormatUint(xxh3.HashString(key), 16)
}

func safeASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

// SanitizeTag percent-encodes every byte a cache backend cannot safely
// store in a tag, accented characters included. Bytes that are already part
// of the tag convention (the ':' group separator, '@' and '.' in emails)
// pass through.
func SanitizeTag(tag string) string {
	if tagSafe(tag) {
		return tag
	}
	var b strings.Builder
	b.Grow(len(tag) + 8)
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if tagSafeByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func tagSafe(tag string) bool {
	for i := 0; i < len(tag); i++ {
		if !tagSafeByte(tag[i]) {
			return false
		}
	}
	return true
}

func tagSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == ':' || c == '@' || c == '.' || c == '-' || c == '_' || c == '+' || c == '~':
		return true
	}
	return false
}
