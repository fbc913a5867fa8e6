package extratool

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeTime = regexp.MustCompile(`^in\s+(\d+)\s+(minute|hour|day|week)s?$`)
	clockTime    = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	todayTime    = regexp.MustCompile(`^(?:today\s+)?(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)

	isoLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}

	units = map[string]time.Duration{
		"minute": time.Minute,
		"hour":   time.Hour,
		"day":    24 * time.Hour,
		"week":   7 * 24 * time.Hour,
	}
)

// ParseRemindAt resolves a reminder time relative to now. Accepted forms:
// an ISO date or timestamp, "in N minute(s)|hour(s)|day(s)|week(s)",
// "tomorrow [at] h[:mm] [am|pm]" (9am when no time is given) and
// "[today] [at] h[:mm] [am|pm]".
func ParseRemindAt(input string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(input)
	fail := fmt.Errorf("Could not parse reminder time: %s", input)

	if strings.Contains(raw, "-") {
		for _, layout := range isoLayouts {
			if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
				return t, nil
			}
		}
	}

	lower := strings.ToLower(raw)

	if m := relativeTime.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(time.Duration(n) * units[m[2]]), nil
	}

	if strings.HasPrefix(lower, "tomorrow") {
		day := now.AddDate(0, 0, 1)
		m := clockTime.FindStringSubmatch(lower)
		if m == nil {
			return atClock(day, 9, 0), nil
		}
		h, min, ok := clock(m)
		if !ok {
			return time.Time{}, fail
		}
		return atClock(day, h, min), nil
	}

	if m := todayTime.FindStringSubmatch(lower); m != nil {
		h, min, ok := clock(m)
		if !ok {
			return time.Time{}, fail
		}
		return atClock(now, h, min), nil
	}

	return time.Time{}, fail
}

// clock converts an h[:mm][am|pm] match to 24-hour time.
func clock(m []string) (hour, minute int, ok bool) {
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute, hour <= 23 && minute <= 59
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
