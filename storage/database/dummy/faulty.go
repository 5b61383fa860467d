package dummydb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/linguadesk/staffdesk/core/attendance"
)

var ErrInjected = errors.New("injected store failure")

// FaultyRepository wraps a Repository and fails the creates of chosen instructors.
// It records every create call it receives.
type FaultyRepository struct {
	attendance.Repository

	mu        sync.Mutex
	failFor   map[string]bool
	createLog []attendance.Record
}

var _ attendance.Repository = (*FaultyRepository)(nil) // interface compliance check

func NewFaultyRepository(repo attendance.Repository, failInstructorIDs ...string) *FaultyRepository {
	fr := &FaultyRepository{Repository: repo, failFor: make(map[string]bool)}
	for _, id := range failInstructorIDs {
		fr.failFor[id] = true
	}
	return fr
}

func (fr *FaultyRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	fr.mu.Lock()
	fr.createLog = append(fr.createLog, rec)
	fail := fr.failFor[rec.InstructorID]
	fr.mu.Unlock()

	if fail {
		return attendance.Record{}, errors.Wrapf(ErrInjected, "creating record for %s", rec.InstructorID)
	}
	return fr.Repository.CreateRecord(ctx, rec)
}

// Creates returns the create calls received so far.
func (fr *FaultyRepository) Creates() []attendance.Record {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return append([]attendance.Record(nil), fr.createLog...)
}
