// Package phone turns user-typed phone numbers into the E.164-looking form sent to the
// identity backend.
package phone

import "strings"

// DefaultCountryCode is the calling code assumed for local numbers.
const DefaultCountryCode = "+91"

const (
	localLength    = 10
	withCodeLength = 12
)

// Normalize applies the local-number heuristic used by the sign-in screen.
//
// Input is trimmed. A number already starting with "+" is returned as is. Without a
// leading "+", a 10 character number gets countryCode prepended, and a 12 character
// number that already begins with the numeric country code only gets a "+". Every other
// shape passes through unchanged; this is not validation.
func Normalize(number, countryCode string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") {
		return number
	}

	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	if !strings.HasPrefix(countryCode, "+") {
		countryCode = "+" + countryCode
	}
	numeric := strings.TrimPrefix(countryCode, "+")

	switch {
	case len(number) == localLength:
		return countryCode + number
	case len(number) == withCodeLength && strings.HasPrefix(number, numeric):
		return "+" + number
	default:
		return number
	}
}

// LooksE164 reports whether number has the "+digits" shape a backend can dial.
func LooksE164(number string) bool {
	if len(number) < 8 || len(number) > 16 || number[0] != '+' {
		return false
	}
	for i := 1; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return true
}
