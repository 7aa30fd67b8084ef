// Package stats parses /stats arguments into backend queries and formats
// the backend's alert summary for chat.
package stats

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the date format accepted from users and sent to the backend.
const DateLayout = "2006-01-02"

// Named periods understood by the backend.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

var periodAliases = map[string]string{
	"day": PeriodDay, "today": PeriodDay, "день": PeriodDay, "сегодня": PeriodDay,
	"week": PeriodWeek, "неделя": PeriodWeek,
	"month": PeriodMonth, "месяц": PeriodMonth,
	"year": PeriodYear, "год": PeriodYear,
}

// Query selects the range for an alert summary: either a named period or an
// inclusive date range.
type Query struct {
	Period string
	Start  time.Time
	End    time.Time
}

// Values encodes the query for the backend stats endpoint.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Period != "" {
		v.Set("period", q.Period)
		return v
	}
	v.Set("start_date", q.Start.Format(DateLayout))
	v.Set("end_date", q.End.Format(DateLayout))
	return v
}

// Label is a short human description of the range.
func (q Query) Label() string {
	if q.Period != "" {
		return periodLabel(q.Period)
	}
	if q.Start.Equal(q.End) {
		return q.Start.Format(DateLayout)
	}
	return q.Start.Format(DateLayout) + " - " + q.End.Format(DateLayout)
}

func periodLabel(p string) string {
	switch p {
	case PeriodDay:
		return "сегодня"
	case PeriodWeek:
		return "неделя"
	case PeriodMonth:
		return "месяц"
	case PeriodYear:
		return "год"
	}
	return p
}

// ParseArgs turns command arguments into a Query. Accepted forms:
//
//	(none)                  today
//	day|week|month|year     named period
//	7d, 2w, 48h             trailing window ending today
//	2025-03-01 2025-03-31   explicit date range
func ParseArgs(args []string, now time.Time) (Query, error) {
	switch len(args) {
	case 0:
		return Query{Period: PeriodDay}, nil
	case 1:
		arg := strings.ToLower(strings.TrimSpace(args[0]))
		if p, ok := periodAliases[arg]; ok {
			return Query{Period: p}, nil
		}
		if d, err := ParseDuration(arg); err == nil {
			end := truncateDay(now)
			start := truncateDay(now.Add(-d))
			return Query{Start: start, End: end}, nil
		}
		if day, err := time.ParseInLocation(DateLayout, arg, now.Location()); err == nil {
			return Query{Start: day, End: day}, nil
		}
		return Query{}, fmt.Errorf("unrecognized period: %s (examples: week, 7d, 2025-03-01 2025-03-31)", args[0])
	case 2:
		start, err := time.ParseInLocation(DateLayout, strings.TrimSpace(args[0]), now.Location())
		if err != nil {
			return Query{}, fmt.Errorf("invalid start date: %s", args[0])
		}
		end, err := time.ParseInLocation(DateLayout, strings.TrimSpace(args[1]), now.Location())
		if err != nil {
			return Query{}, fmt.Errorf("invalid end date: %s", args[1])
		}
		if start.After(end) {
			return Query{}, fmt.Errorf("start date must not be after end date")
		}
		return Query{Start: start, End: end}, nil
	default:
		return Query{}, fmt.Errorf("too many arguments")
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// durationRegex matches durations like "12h", "7d", "2w"
var durationRegex = regexp.MustCompile(`^(\d+)(h|d|w)$`)

// ParseDuration parses a window length in hours, days or weeks.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	matches := durationRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (examples: 24h, 7d, 2w)", s)
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", s)
	}
	switch matches[2] {
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	}
}
