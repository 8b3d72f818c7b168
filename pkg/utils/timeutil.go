package utils

import (
	"time"
)

// NewsAPITimeLayout is the from/to timestamp layout accepted by the search API.
const NewsAPITimeLayout = "2006-01-02T15:04:05Z"

// LookbackWindow returns the [from, to] range covering the last days days
// ending at now, both in UTC and truncated to the second.
func LookbackWindow(now time.Time, days int) (from, to time.Time) {
	to = now.UTC().Truncate(time.Second)
	from = to.AddDate(0, 0, -days)
	return from, to
}

// Since returns the cutoff time for a days-back filter.
func Since(now time.Time, daysBack int) time.Time {
	return now.UTC().AddDate(0, 0, -daysBack)
}

// FormatNewsAPI formats t in the search API's UTC layout.
func FormatNewsAPI(t time.Time) string {
	return t.UTC().Format(NewsAPITimeLayout)
}

// ParseFlexible parses the timestamp formats seen in search results:
// RFC3339 (with or without fractional seconds), the search API layout,
// and a bare date. The zero time is returned when nothing matches.
func ParseFlexible(s string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		NewsAPITimeLayout,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
