// Package phone derives the canonical phone key used to deduplicate leads.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultCountryCode is prefixed to bare ten digit national numbers.
const DefaultCountryCode = "91"

const nationalNumberLength = 10

// Normalize strips every non-digit from raw. A result of exactly ten digits
// is prefixed with DefaultCountryCode; any other length is returned as-is.
// An input without digits yields the empty key, meaning "no phone identity".
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) == nationalNumberLength {
		return DefaultCountryCode + digits
	}
	return digits
}

// NormalizePtr is Normalize for optional values; the empty key becomes nil.
func NormalizePtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	key := Normalize(*raw)
	if key == "" {
		return nil
	}
	return &key
}

// FormatE164 renders a canonical key as an E.164 number for outbound
// transports. Keys that do not parse as a valid number are returned
// unchanged so the transport can report the failure.
func FormatE164(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse("+"+strings.TrimPrefix(trimmed, "+"), "")
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}
