package logger

import (
	"strings"
)

// SanitizedEmail masks an address for logging, keeping the first character
// of the local part and the TLD.
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	local := parts[0]
	if len(local) > 1 {
		local = string(local[0]) + strings.Repeat("*", len(local)-1)
	}

	domainParts := strings.Split(parts[1], ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
	}

	return local + "@" + strings.Join(domainParts, ".")
}

// SanitizeQueryString reports whether a raw query string names a sensitive
// parameter and should be redacted wholesale.
func SanitizeQueryString(rawQuery string) bool {
	sensitive := []string{"password", "token", "secret", "api_key", "apikey", "email", "auth", "code"}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitive {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
