package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const indexLayout = "0601"

// MonthStart returns 00:00 of the first day of t's month in t's location.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// NextIndex returns the index following last within the month of now.
// Indexes are yymm followed by a sequence of at least three digits.
func NextIndex(now time.Time, last string) string {
	prefix := now.Format(indexLayout)
	return prefix + fmt.Sprintf("%03d", sequence(prefix, last)+1)
}

func sequence(prefix, last string) int {
	suffix := last
	switch {
	case strings.HasPrefix(last, prefix):
		suffix = last[len(prefix):]
	case len(last) > 3:
		suffix = last[len(last)-3:]
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
