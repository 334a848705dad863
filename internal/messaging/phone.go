package messaging

import "strings"

// NormalizeKey reduces a phone number to its decimal digits. The digits-only
// form is the sole key space for reply correlation, so formatting drift between
// an outbound send ("+1 555-123-4567") and an inbound webhook ("15551234567")
// never causes a missed match.
func NormalizeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
