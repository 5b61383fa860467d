package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

type instructorRepository struct {
	db *instructorTable
}

var _ attendance.Roster = (*instructorRepository)(nil) // interface compliance check

func NewInstructorRepository(db *DB) *instructorRepository {
	return &instructorRepository{db: db.instructor}
}

func (repo *instructorRepository) ListInstructors(_ context.Context, schoolID string) ([]attendance.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	schoolID = core.CleanString(schoolID)
	instructors := make([]attendance.Instructor, 0, len(repo.db.order))
	for _, id := range repo.db.order {
		ins := repo.db.table[id]
		if schoolID == "" || ins.SchoolID == schoolID {
			instructors = append(instructors, *ins)
		}
	}
	return instructors, nil
}

func (repo *instructorRepository) CreateInstructor(_ context.Context, ins attendance.Instructor) (attendance.Instructor, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if ins.ID == "" {
		ins.ID = uuid.New().String()
	}
	if _, ok := repo.db.table[ins.ID]; !ok {
		repo.db.order = append(repo.db.order, ins.ID)
	}
	repo.db.table[ins.ID] = &ins
	return ins, nil
}
