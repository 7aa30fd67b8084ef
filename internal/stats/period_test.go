package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/mr-karan/boxrelay/pkg/models"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "hours", input: "48h", expected: 48 * time.Hour},
		{name: "days", input: "7d", expected: 7 * 24 * time.Hour},
		{name: "weeks", input: "2w", expected: 14 * 24 * time.Hour},
		{name: "uppercase", input: "3D", expected: 3 * 24 * time.Hour},
		{name: "zero", input: "0d", expected: 0},

		{name: "minutes unsupported", input: "15m", wantErr: true},
		{name: "no number", input: "d", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-5d", wantErr: true},
		{name: "decimal", input: "1.5d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDuration(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseDuration(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	now := time.Date(2025, 3, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		args       []string
		wantPeriod string
		wantStart  string
		wantEnd    string
		wantErr    bool
	}{
		{name: "default", args: nil, wantPeriod: PeriodDay},
		{name: "week", args: []string{"week"}, wantPeriod: PeriodWeek},
		{name: "russian alias", args: []string{"Месяц"}, wantPeriod: PeriodMonth},
		{name: "window", args: []string{"7d"}, wantStart: "2025-03-08", wantEnd: "2025-03-15"},
		{name: "single date", args: []string{"2025-03-01"}, wantStart: "2025-03-01", wantEnd: "2025-03-01"},
		{name: "date range", args: []string{"2025-03-01", "2025-03-10"}, wantStart: "2025-03-01", wantEnd: "2025-03-10"},

		{name: "reversed range", args: []string{"2025-03-10", "2025-03-01"}, wantErr: true},
		{name: "bad date", args: []string{"2025-13-01", "2025-03-01"}, wantErr: true},
		{name: "garbage", args: []string{"soon"}, wantErr: true},
		{name: "too many", args: []string{"a", "b", "c"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseArgs(tt.args, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseArgs(%v) expected error, got %+v", tt.args, q)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArgs(%v) unexpected error: %v", tt.args, err)
			}
			v := q.Values()
			if tt.wantPeriod != "" {
				if got := v.Get("period"); got != tt.wantPeriod {
					t.Errorf("period = %q, want %q", got, tt.wantPeriod)
				}
				return
			}
			if got := v.Get("start_date"); got != tt.wantStart {
				t.Errorf("start_date = %q, want %q", got, tt.wantStart)
			}
			if got := v.Get("end_date"); got != tt.wantEnd {
				t.Errorf("end_date = %q, want %q", got, tt.wantEnd)
			}
			if v.Has("period") {
				t.Errorf("unexpected period in %v", v)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	generated := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	s := &models.AlertStats{
		Total:       12,
		ByStatus:    map[string]int64{"confirmed": 3, "pending": 9},
		ByAlgorithm: map[string]int64{"<helmet>": 12},
		GeneratedAt: &generated,
	}

	out := Format(s, Query{Period: PeriodWeek})

	for _, want := range []string{"(неделя)", "Всего: <b>12</b>", "• pending: 9\n• confirmed: 3", "&lt;helmet&gt;", "2025-03-15 09:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "По устройству") {
		t.Errorf("empty section rendered:\n%s", out)
	}
}

func TestFormat_TruncatesRows(t *testing.T) {
	devices := map[string]int64{}
	for i := 0; i < 15; i++ {
		devices[string(rune('a'+i))] = int64(i)
	}
	out := Format(&models.AlertStats{ByDevice: devices}, Query{Period: PeriodDay})
	if !strings.Contains(out, "ещё 5") {
		t.Errorf("expected truncation marker in:\n%s", out)
	}
}
