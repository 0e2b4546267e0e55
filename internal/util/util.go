// Package util provides small shared helpers with no natural home in a
// single domain package.
package util

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a time.Time (UTC midnight).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats a time.Time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
