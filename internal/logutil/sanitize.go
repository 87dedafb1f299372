// Package logutil keeps operator-supplied strings safe to log.
package logutil

import "strings"

// Sanitize removes newlines and control characters from user-provided strings
// so remote hosts cannot inject fake log entries through hostnames, labels,
// or command text.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Redact replaces every occurrence of secret in s with a fixed marker.
// Used on error text that may echo authentication material. An empty secret
// redacts nothing.
func Redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}
