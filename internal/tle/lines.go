package tle

import "strings"

// SplitLines splits raw catalog text into trimmed, non-blank lines. Both LF
// and CRLF endings are accepted.
func SplitLines(data []byte) []string {
	raw := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
