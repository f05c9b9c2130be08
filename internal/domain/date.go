package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var datePattern = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)

// NormalizeDate converts YYYY-MM-DD, YYYY-M-D and YYYY/M/D (zero padded or not)
// into canonical YYYY-MM-DD. A trailing time component is ignored.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}

	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("unrecognised date %q", s)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", fmt.Errorf("impossible date %q", s)
	}
	return t.Format("2006-01-02"), nil
}

// DisplayDate renders a canonical date as YYYY/M/D. Unparseable input is returned unchanged.
func DisplayDate(s string) string {
	t, err := ParseDate(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d/%d/%d", t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses any accepted date spelling into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	norm, err := NormalizeDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse("2006-01-02", norm)
}

// Month returns the YYYY-MM prefix of a canonical date.
func Month(date string) string {
	if len(date) >= 7 {
		return date[:7]
	}
	return date
}
