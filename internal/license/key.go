package license

import (
	"regexp"
	"strings"

	apperrors "licensegate/internal/errors"
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`)

// NormalizeKey trims, removes internal whitespace and uppercases a key
func NormalizeKey(input string) string {
	return strings.ToUpper(strings.Join(strings.Fields(input), ""))
}

// ValidateKeyFormat reports whether key is in canonical XXXX-XXXX-XXXX-XXXX form
func ValidateKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// ParseKey normalizes input and checks its format
func ParseKey(input string) (string, error) {
	key := NormalizeKey(input)
	if !ValidateKeyFormat(key) {
		return "", apperrors.ErrInvalidLicenseKey
	}
	return key, nil
}

// MaskKey hides the middle of a key for logging
func MaskKey(key string) string {
	if ValidateKeyFormat(key) {
		return key[:4] + "-****-****-" + key[15:]
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
