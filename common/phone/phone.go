// Package phone canonicalizes free-form phone strings so that numbers
// captured from different sources (webhooks, directory records, ticket
// fields) compare equal.
package phone

import "strings"

// Normalize strips whitespace and punctuation from a phone string, keeping
// a single leading "+" if present. Idempotent: Normalize(Normalize(x)) ==
// Normalize(x).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	plus := strings.HasPrefix(s, "+")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '(', ')', '-', '.', '+':
			continue
		}
		b.WriteRune(r)
	}

	if plus {
		return "+" + b.String()
	}
	return b.String()
}

// Compose joins a country code and a local number into one normalized phone.
// Tickets store the two halves separately; the gateway reports a single
// string.
func Compose(countryCode, localNumber string) string {
	return Normalize(countryCode + localNumber)
}
