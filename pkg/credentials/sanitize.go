package credentials

import "strings"

// maxAPIErrorChars bounds upstream error bodies quoted back to callers.
const maxAPIErrorChars = 200

var secretPrefixes = []string{"sk-", "xoxb-", "xoxp-"}

func isSecretChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == ':':
		return true
	default:
		return false
	}
}

// ScrubSecrets redacts secret-like tokens (sk-, xoxb-, xoxp- prefixes) from
// provider error text before it is logged or returned to a caller.
func ScrubSecrets(input string) string {
	out := input
	for _, prefix := range secretPrefixes {
		searchFrom := 0
		for {
			rel := strings.Index(out[searchFrom:], prefix)
			if rel < 0 {
				break
			}
			start := searchFrom + rel
			end := start + len(prefix)
			for end < len(out) && isSecretChar(out[end]) {
				end++
			}
			// A bare prefix with no token body is left alone.
			if end == start+len(prefix) {
				searchFrom = end
				continue
			}
			out = out[:start] + "[REDACTED]" + out[end:]
			searchFrom = start + len("[REDACTED]")
		}
	}
	return out
}

// SanitizeAPIError scrubs secrets from upstream error text and truncates it
// to a quotable length.
func SanitizeAPIError(input string) string {
	scrubbed := ScrubSecrets(input)
	runes := []rune(scrubbed)
	if len(runes) <= maxAPIErrorChars {
		return scrubbed
	}
	return string(runes[:maxAPIErrorChars]) + "..."
}
