package redact

import "strings"

// Credential masks an API key for logging, keeping just enough of the
// prefix to recognize which key was used.
func Credential(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:6] + "****"
}
