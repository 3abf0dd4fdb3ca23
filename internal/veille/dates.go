package veille

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // Europe/Zurich must resolve on minimal images
)

var swissDateRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

// genericLayouts are tried, in order, after the Swiss DD.MM.YYYY form.
var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"2 January 2006",
}

// Zurich returns the Europe/Zurich location, or UTC if it cannot be loaded.
var Zurich = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		return time.UTC
	}
	return loc
})

// MatchSwissDate finds the first DD.MM.YYYY date in s and builds it from its
// day, month and year in Europe/Zurich.
func MatchSwissDate(s string) (time.Time, bool) {
	m := swissDateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, Zurich())
	// time.Date normalizes 31.02 into March; reject it.
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// ParseDate parses a free-text source date: Swiss DD.MM.YYYY first, then a
// few generic layouts, else now.
func ParseDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	if t, ok := MatchSwissDate(s); ok {
		return t
	}
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, Zurich()); err == nil {
			return t
		}
	}
	return now
}
