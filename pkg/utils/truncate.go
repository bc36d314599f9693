package utils

import "unicode/utf8"

// TruncateSuffix is appended to text cut by Truncate.
const TruncateSuffix = "\n... [truncated]"

// Truncate returns the first limit characters of s followed by suffix, or s
// unchanged when it is short enough. A negative limit disables truncation.
func Truncate(s string, limit int, suffix string) string {
	if limit < 0 || len(s) <= limit || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + suffix
		}
		n++
	}
	return s
}
