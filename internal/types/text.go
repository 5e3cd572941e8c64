package types

import "unicode/utf8"

// TruncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence
func TruncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
