package util

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.NewString()
}

// IsID reports whether value is a well-formed row identifier.
func IsID(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}

// SanitizeFilename keeps letters, digits, dots and dashes. Everything else
// becomes an underscore.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	result := b.String()
	if len(result) > 120 {
		result = result[len(result)-120:]
	}
	if strings.Trim(result, "._") == "" {
		return "file"
	}
	return result
}

// FileExtension returns the lower-cased extension without the dot.
func FileExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}
