package logger

import (
	"strconv"
	"strings"
	"time"
)

// RoundMS rounds d to whole milliseconds; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SinceMS is the rounded time since start in milliseconds.
func SinceMS(start time.Time) int64 {
	return RoundMS(time.Since(start)).Milliseconds()
}

// SummarizeStrings joins at most limit values with ", " and appends
// "(+N more)" when some were left out.
func SummarizeStrings(values []string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	shown := values[:min(limit, len(values))]
	preview := strings.Join(shown, ", ")
	if rest := len(values) - len(shown); rest > 0 {
		suffix := "(+" + strconv.Itoa(rest) + " more)"
		if preview == "" {
			return suffix
		}
		return preview + " " + suffix
	}
	return preview
}
