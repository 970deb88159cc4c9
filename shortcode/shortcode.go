package shortcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultLength gives 62^6 combinations, enough that random collisions
	// stay rare and the insert-retry loop terminates quickly.
	DefaultLength = 6

	MinCustomLength = 6
	MaxCustomLength = 10
)

var customCodeRe = regexp.MustCompile(
	fmt.Sprintf(`^[A-Za-z0-9]{%d,%d}$`, MinCustomLength, MaxCustomLength))

// Generate returns a random code of the given length drawn uniformly from
// the 62-character alphanumeric alphabet.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	code := make([]byte, length)
	charsetLength := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		randomIndex, err := rand.Int(rand.Reader, charsetLength)
		if err != nil {
			return "", err
		}
		code[i] = charset[randomIndex.Int64()]
	}

	return string(code), nil
}

// ValidCustomCode reports whether a caller-supplied code is alphanumeric
// and between 6 and 10 characters.
func ValidCustomCode(code string) bool {
	return customCodeRe.MatchString(code)
}

// escapeCleaner reverses upstream double-escaping: a backslash immediately
// before '?', '=' or '&' is reduced to the bare character.
var escapeCleaner = strings.NewReplacer(`\?`, "?", `\=`, "=", `\&`, "&")

// Normalize cleans stray backslash escapes and prefixes https:// when the
// URL carries no scheme.
func Normalize(raw string) string {
	cleaned := escapeCleaner.Replace(strings.TrimSpace(raw))
	if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
		return "https://" + cleaned
	}
	return cleaned
}

// Validate is a syntactic check only: the URL must carry an http or https
// scheme. No DNS or reachability probing.
func Validate(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
