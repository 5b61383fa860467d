package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

type attendanceRepository struct {
	db          *recordTable
	instructors *instructorTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.record, instructors: db.instructor}
}

func dayKey(instructorID, day string) string {
	return instructorID + "|" + day
}

func (repo *attendanceRepository) schoolOf(instructorID string) string {
	repo.instructors.RLock()
	defer repo.instructors.RUnlock()
	if ins, ok := repo.instructors.table[instructorID]; ok {
		return ins.SchoolID
	}
	return ""
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	var scope *attendance.Scope
	if filter.Date != "" {
		sc, err := attendance.ParseScope(filter.Date, "")
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: "date", Error: errors.Cause(err).Error()})
		}
		scope = &sc
	}

	repo.db.RLock()
	defer repo.db.RUnlock()

	records := make([]attendance.Record, 0)
	for _, rec := range repo.db.table {
		if filter.InstructorID != "" && rec.InstructorID != filter.InstructorID {
			continue
		}
		if filter.SchoolID != "" && repo.schoolOf(rec.InstructorID) != filter.SchoolID {
			continue
		}
		if scope != nil {
			day, err := attendance.NormalizeDate(rec.Date)
			if err != nil || !scope.Contains(day) {
				continue
			}
		}
		records = append(records, *rec)
	}
	sortRecords(records, filter.Ordering)
	return records, nil
}

func recordLess(a, b attendance.Record, field string) (less, equal bool) {
	switch field {
	case "date":
		return a.Date < b.Date, a.Date == b.Date
	case "instructor_id":
		return a.InstructorID < b.InstructorID, a.InstructorID == b.InstructorID
	case "status":
		return a.Status < b.Status, a.Status == b.Status
	case "created_at":
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	}
	return false, true
}

func sortRecords(records []attendance.Record, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date", Ascending: true}, {Field: "instructor_id", Ascending: true}}
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range ordering {
			less, equal := recordLess(records[i], records[j], ord.Field)
			if equal {
				continue
			}
			if ord.Ascending {
				return less
			}
			return !less
		}
		return records[i].ID < records[j].ID
	})
}

func (repo *attendanceRepository) GetRecord(_ context.Context, id string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return *rec, nil
}

func (repo *attendanceRepository) CreateRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	day, err := attendance.NormalizeDate(rec.Date)
	if err != nil {
		return attendance.Record{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: errors.Cause(err).Error()})
	}
	rec.Date = day

	repo.db.Lock()
	defer repo.db.Unlock()

	key := dayKey(rec.InstructorID, day)
	if id, ok := repo.db.byDay[key]; ok {
		existing := repo.db.table[id]
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		rec.Version = existing.Version + 1
	} else {
		rec.ID = uuid.New().String()
		rec.Version = 1
	}
	repo.db.table[rec.ID] = &rec
	repo.db.byDay[key] = rec.ID
	return rec, nil
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, id string, ur attendance.UpdateRecord, updatedAt time.Time) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	current, ok := repo.db.table[id]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	if ur.Version != nil && *ur.Version != current.Version {
		return attendance.Record{}, attendance.ErrVersionConflict
	}
	rec := ur.Apply(*current)
	rec.Version++
	rec.UpdatedAt = updatedAt
	repo.db.table[id] = &rec
	return rec, nil
}

func (repo *attendanceRepository) DeleteRecord(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return attendance.ErrNotFound
	}
	delete(repo.db.byDay, dayKey(rec.InstructorID, rec.Date))
	delete(repo.db.table, id)
	return nil
}
