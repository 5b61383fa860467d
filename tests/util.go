package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/linguadesk/staffdesk/core/attendance"
	dummydb "github.com/linguadesk/staffdesk/storage/database/dummy"
)

// InstructorCreator is implemented by the instructor repositories.
type InstructorCreator interface {
	CreateInstructor(ctx context.Context, ins attendance.Instructor) (attendance.Instructor, error)
}

// Store bundles the in-memory repositories used by tests.
type Store struct {
	DB          *dummydb.DB
	Records     attendance.Repository
	Instructors interface {
		attendance.Roster
		InstructorCreator
	}
}

func NewDummyStore(t *testing.T) Store {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("NewDummyStore() failed: %v", err)
	}
	return Store{
		DB:          db,
		Records:     dummydb.NewAttendanceRepository(db),
		Instructors: dummydb.NewInstructorRepository(db),
	}
}

func CreateInstructor(t *testing.T, repo InstructorCreator, id, name, schoolID string) attendance.Instructor {
	ins, err := repo.CreateInstructor(context.Background(), attendance.Instructor{ID: id, Name: name, SchoolID: schoolID})
	if err != nil {
		t.Fatalf("CreateInstructor() failed: %v", err)
	}
	return ins
}

func CreateRecord(
	t *testing.T,
	repo attendance.Repository,
	instructorID, date string,
	status attendance.Status,
	timeIn string,
	createdAt ...time.Time,
) attendance.Record {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	rec, err := repo.CreateRecord(context.Background(), attendance.Record{
		InstructorID: instructorID,
		Date:         date,
		Status:       status,
		TimeIn:       timeIn,
		RecordedBy:   "test",
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	})
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return rec
}
