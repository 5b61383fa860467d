package attendance

import (
	"math"
)

// Rate returns the attendance rate in percent. Late days count as half a present day.
func Rate(present, late, recorded int) int {
	if recorded <= 0 {
		return 0
	}
	return int(math.Round((float64(present) + 0.5*float64(late)) / float64(recorded) * 100))
}

// Aggregate computes the attendance statistics of every instructor of the roster over scope.
// Records are normalized and filtered against the scope (and the roster) first, so callers may
// pass a raw fetch. Stats follow the roster order.
func Aggregate(instructors []Instructor, records []Record, scope Scope) Report {
	selected, skipped := SelectRecords(records, scope.WithInstructors(instructors))

	byInstructor := make(map[string][]Record, len(instructors))
	days := make(map[string]struct{})
	for _, rec := range selected {
		if !rec.Status.Valid() {
			skipped = append(skipped, SkippedRecord{Record: rec, Reason: ErrInvalidStatus.Error()})
			continue
		}
		byInstructor[rec.InstructorID] = append(byInstructor[rec.InstructorID], rec)
		days[rec.Date] = struct{}{}
	}

	stats := make([]InstructorStat, 0, len(instructors))
	for _, ins := range instructors {
		st := InstructorStat{
			InstructorID: ins.ID,
			Name:         ins.Name,
			Records:      byInstructor[ins.ID],
		}
		if st.Records == nil {
			st.Records = []Record{}
		}
		for _, rec := range st.Records {
			switch {
			case rec.Status == StatusPresent:
				st.PresentDays++
			case rec.Status == StatusLate:
				st.LateDays++
			case rec.Status.IsAbsence():
				st.AbsentDays++
			}
		}
		st.RecordedDays = st.PresentDays + st.LateDays + st.AbsentDays
		st.AttendanceRate = Rate(st.PresentDays, st.LateDays, st.RecordedDays)
		stats = append(stats, st)
	}

	return Report{
		Scope:        scope,
		Stats:        stats,
		DistinctDays: len(days),
		Skipped:      skipped,
	}
}
