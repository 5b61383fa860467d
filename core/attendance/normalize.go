package attendance

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

var (
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD or an ISO date-time")
	ErrInvalidPeriod = errors.New("invalid period, expected YYYY-MM-DD or YYYY-MM")
)

// NormalizeDate reduces a bare day or an ISO date-time to its "YYYY-MM-DD" day key.
// Normalizing a day key is a no-op.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(dayLayout) {
		return "", errors.Wrapf(ErrInvalidDate, "%q", s)
	}
	if len(s) > len(dayLayout) {
		if sep := s[len(dayLayout)]; sep != 'T' && sep != 't' && sep != ' ' {
			return "", errors.Wrapf(ErrInvalidDate, "%q", s)
		}
	}
	day := s[:len(dayLayout)]
	if _, err := time.Parse(dayLayout, day); err != nil {
		return "", errors.Wrapf(ErrInvalidDate, "%q", s)
	}
	return day, nil
}

// MonthOf returns the "YYYY-MM" key of a day key.
func MonthOf(day string) string {
	if len(day) < len(monthLayout) {
		return day
	}
	return day[:len(monthLayout)]
}

type PeriodKind string

const (
	PeriodDay   PeriodKind = "day"
	PeriodMonth PeriodKind = "month"
)

// Scope is the reporting window: a day or a month, optionally limited to a set of instructors.
type Scope struct {
	Period   string
	Kind     PeriodKind
	SchoolID string

	instructorIDs map[string]struct{}
}

// ParsePeriod validates a day or month period and returns its canonical form.
func ParsePeriod(period string) (string, PeriodKind, error) {
	period = strings.TrimSpace(period)
	if len(period) == len(monthLayout) {
		if _, err := time.Parse(monthLayout, period); err != nil {
			return "", "", errors.Wrapf(ErrInvalidPeriod, "%q", period)
		}
		return period, PeriodMonth, nil
	}
	day, err := NormalizeDate(period)
	if err != nil {
		return "", "", errors.Wrapf(ErrInvalidPeriod, "%q", period)
	}
	return day, PeriodDay, nil
}

func ParseScope(period, schoolID string) (Scope, error) {
	p, kind, err := ParsePeriod(period)
	if err != nil {
		return Scope{}, err
	}
	return Scope{Period: p, Kind: kind, SchoolID: strings.TrimSpace(schoolID)}, nil
}

// WithInstructors returns a copy of the scope restricted to the given instructors.
func (sc Scope) WithInstructors(instructors []Instructor) Scope {
	ids := make(map[string]struct{}, len(instructors))
	for _, ins := range instructors {
		ids[ins.ID] = struct{}{}
	}
	sc.instructorIDs = ids
	return sc
}

// Contains reports whether a normalized day key falls within the scope's period.
func (sc Scope) Contains(day string) bool {
	switch sc.Kind {
	case PeriodDay:
		return day == sc.Period
	case PeriodMonth:
		return strings.HasPrefix(day, sc.Period+"-")
	}
	return false
}

func (sc Scope) includesInstructor(id string) bool {
	if sc.instructorIDs == nil {
		return true
	}
	_, ok := sc.instructorIDs[id]
	return ok
}

// Key identifies the scope in caches.
func (sc Scope) Key() string {
	return sc.SchoolID + "|" + sc.Period
}

func (sc Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Period   string     `json:"period"`
		Kind     PeriodKind `json:"kind"`
		SchoolID string     `json:"school_id,omitempty"`
	}{sc.Period, sc.Kind, sc.SchoolID})
}

// SelectRecords keeps the records that belong to the scope, with their dates normalized.
// Records whose date cannot be normalized are returned as skipped instead of failing the selection.
// The output is sorted by date, instructor and ID; inputs are left untouched.
func SelectRecords(records []Record, scope Scope) ([]Record, []SkippedRecord) {
	selected := make([]Record, 0, len(records))
	var skipped []SkippedRecord

	for _, rec := range records {
		day, err := NormalizeDate(rec.Date)
		if err != nil {
			if scope.includesInstructor(rec.InstructorID) {
				skipped = append(skipped, SkippedRecord{Record: rec, Reason: err.Error()})
			}
			continue
		}
		if !scope.Contains(day) || !scope.includesInstructor(rec.InstructorID) {
			continue
		}
		rec.Date = day
		selected = append(selected, rec)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.InstructorID != b.InstructorID {
			return a.InstructorID < b.InstructorID
		}
		return a.ID < b.ID
	})
	return selected, skipped
}
