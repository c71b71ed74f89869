package sales

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const referenceLayout = "2006-01-02"

// ReferencePrefix is the per-day prefix of order references, e.g. "SO-2026-03-02-".
func ReferencePrefix(day time.Time) string {
	return "SO-" + day.Format(referenceLayout) + "-"
}

// NextReference returns the reference following latest for the given day.
// An empty latest starts the day at 001.
func NextReference(day time.Time, latest string) (string, error) {
	prefix := ReferencePrefix(day)
	seq := 0
	if latest != "" {
		if !strings.HasPrefix(latest, prefix) {
			return "", fmt.Errorf("sales: reference %q does not match prefix %q", latest, prefix)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(latest, prefix))
		if err != nil {
			return "", fmt.Errorf("sales: parse reference %q: %w", latest, err)
		}
		seq = n
	}
	return fmt.Sprintf("%s%03d", prefix, seq+1), nil
}
