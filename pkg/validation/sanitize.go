package validation

import (
	"strings"
	"unicode"
)

// MaxClientIDLength is the longest MQTT client identifier every broker accepts.
const MaxClientIDLength = 23

// RandomPlaceholder is replaced by a generated suffix in client identifiers.
const RandomPlaceholder = "{random}"

// SanitizeClientID strips non-printable characters from an MQTT client ID and
// truncates it. An ID that ends up empty is replaced by fallback. A trailing
// {random} placeholder is preserved and does not count toward the limit.
func SanitizeClientID(clientID, fallback string) string {
	base, random := clientID, false
	if idx := strings.Index(clientID, RandomPlaceholder); idx >= 0 {
		base, random = clientID[:idx], true
	}

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || !unicode.IsPrint(r) || r == '{' || r == '}' {
			return -1
		}
		return r
	}, base)
	if len(sanitized) > MaxClientIDLength {
		sanitized = sanitized[:MaxClientIDLength]
	}
	if sanitized == "" {
		sanitized = fallback
	}
	if random {
		return strings.TrimSuffix(sanitized, "-") + "-" + RandomPlaceholder
	}
	return sanitized
}

// SanitizeUsername removes control characters and quoting characters.
func SanitizeUsername(username string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' || r == '\'' || r == '\\' {
			return -1
		}
		return r
	}, username)

	sanitized = strings.TrimSpace(sanitized)
	if len(sanitized) > 128 {
		sanitized = sanitized[:128]
	}
	return sanitized
}

// SanitizePassword removes null bytes and control characters other than
// tab, newline and carriage return.
func SanitizePassword(password string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, password)
}
