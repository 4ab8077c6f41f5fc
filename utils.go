package edgestore

import (
	"strings"
)

// NormalizeEmail lowercases an email address. The remote system resolves
// addresses case-insensitively, so one canonical form keeps cache keys
// stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmail reports whether an identifier looks like an email address rather
// than a developer identifier.
func IsEmail(id string) bool {
	at := strings.IndexByte(id, '@')
	return at > 0 && at < len(id)-1
}

// IsDeveloperID reports whether an identifier has the shape of a remote
// developer identifier (UUID, 8-4-4-4-12 hex groups).
func IsDeveloperID(id string) bool {
	if len(id) != 36 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(c) {
				return false
			}
		}
	}
	return true
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
