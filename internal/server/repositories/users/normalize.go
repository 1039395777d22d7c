package users

import "strings"

// Normalize lower-cases and trims a username or email for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
