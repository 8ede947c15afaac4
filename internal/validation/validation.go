package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooShort is returned when the city length is below the minimum.
var ErrCityTooShort = errors.New("city too short")

// ErrCityTooLong is returned when the city length exceeds the maximum.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when the city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in
// runes), and restricts to allowed characters: letters (Unicode), space,
// comma, hyphen, apostrophe. Unicode letters matter here: Turkish city names
// like Şanlıurfa and İzmir must pass. Returns the trimmed string or an error
// suitable for 400 INVALID_CITY responses. Normalization (e.g. lowercase) is
// left to the caller.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// isAllowedCityRune returns true for letters (Unicode), space, comma, hyphen, apostrophe.
func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'':
		return true
	}
	return false
}
