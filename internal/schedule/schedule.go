// Package schedule models the structured week timetable extracted from
// schedule files and the time arithmetic built on top of it.
package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DayKeys are the seven fixed weekday keys of the persisted format,
// Monday first.
var DayKeys = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// Entry is one timetable slot.
type Entry struct {
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
	Subject   string `json:"subject"`
	Room      string `json:"room"`
}

// Week maps weekday keys to that day's ordered entries. A parsed Week
// always carries exactly the seven DayKeys; empty days hold an empty
// slice.
type Week map[string][]Entry

// DayKey returns the weekday key for t.
func DayKey(t time.Time) string {
	// time.Weekday is Sunday-based.
	idx := (int(t.Weekday()) + 6) % 7
	return DayKeys[idx]
}

// DayName returns the display name for a weekday key.
func DayName(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

// ParseClock parses an "H:MM" or "HH:MM" clock string into minutes
// from midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Parse validates raw extractor/store JSON into a Week. Unknown keys,
// malformed JSON, or entries with unparsable clock strings or an empty
// subject are rejected outright so a bad extraction never replaces a
// good stored schedule. Missing weekdays become empty days. Each day is
// sorted by start time: the stored ordering invariant is enforced here,
// not assumed.
func Parse(raw []byte) (Week, error) {
	var decoded map[string][]Entry
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}

	known := make(map[string]bool, len(DayKeys))
	for _, k := range DayKeys {
		known[k] = true
	}
	for k := range decoded {
		if !known[k] {
			return nil, fmt.Errorf("unknown weekday key %q", k)
		}
	}

	week := make(Week, len(DayKeys))
	for _, day := range DayKeys {
		entries := decoded[day]
		for i, e := range entries {
			if _, err := ParseClock(e.TimeStart); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", day, i, err)
			}
			if _, err := ParseClock(e.TimeEnd); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", day, i, err)
			}
			if strings.TrimSpace(e.Subject) == "" {
				return nil, fmt.Errorf("%s[%d]: empty subject", day, i)
			}
		}
		sorted := make([]Entry, len(entries))
		copy(sorted, entries)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, _ := ParseClock(sorted[i].TimeStart)
			b, _ := ParseClock(sorted[j].TimeStart)
			return a < b
		})
		if sorted == nil {
			sorted = []Entry{}
		}
		week[day] = sorted
	}
	return week, nil
}

// Marshal encodes the week in the persisted format with all seven keys.
func (w Week) Marshal() ([]byte, error) {
	full := make(map[string][]Entry, len(DayKeys))
	for _, day := range DayKeys {
		entries := w[day]
		if entries == nil {
			entries = []Entry{}
		}
		full[day] = entries
	}
	return json.Marshal(full)
}

// NextClass is the nearest entry that has not started yet.
type NextClass struct {
	Entry
	MinutesUntil int
}

// Next scans today's bucket (in now's location) for the first entry
// whose start is strictly after now. Returns false when today has no
// remaining entries.
func Next(w Week, now time.Time) (NextClass, bool) {
	entries := w[DayKey(now)]
	nowMinutes := now.Hour()*60 + now.Minute()

	for _, e := range entries {
		start, err := ParseClock(e.TimeStart)
		if err != nil {
			continue
		}
		if start > nowMinutes {
			return NextClass{Entry: e, MinutesUntil: start - nowMinutes - boundaryAdjust(now)}, true
		}
	}
	return NextClass{}, false
}

// boundaryAdjust keeps MinutesUntil a floor of the true remaining time:
// with seconds on the clock, a class starting at 9:00 checked at 8:50:30
// is 9 whole minutes away, not 10.
func boundaryAdjust(now time.Time) int {
	if now.Second() > 0 || now.Nanosecond() > 0 {
		return 1
	}
	return 0
}
