package attendance

import (
	"sync"

	"github.com/pkg/errors"
)

const defaultStagedTimeIn = "07:00"

var (
	ErrNotStaged      = errors.New("instructor is not part of the staged roster")
	ErrTimeInDisabled = errors.New("time in can only be edited for present instructors")
)

// StagedEntry is the pending attendance of one instructor in a bulk editing session.
type StagedEntry struct {
	InstructorID string `json:"instructor_id"`
	Name         string `json:"name"`
	Selected     bool   `json:"selected"`
	Status       Status `json:"status"`
	TimeIn       string `json:"time_in"`
}

// Staging holds the entries of a bulk editing session, one per roster member.
// A Staging is built per session and discarded after submission.
type Staging struct {
	SchoolID string

	mu      sync.RWMutex
	order   []string
	entries map[string]*StagedEntry
}

func NewStaging(roster []Instructor) *Staging {
	s := &Staging{entries: make(map[string]*StagedEntry, len(roster))}
	for _, ins := range roster {
		if s.SchoolID == "" {
			s.SchoolID = ins.SchoolID
		}
		if _, ok := s.entries[ins.ID]; ok {
			continue
		}
		s.order = append(s.order, ins.ID)
		s.entries[ins.ID] = &StagedEntry{
			InstructorID: ins.ID,
			Name:         ins.Name,
			Status:       StatusPresent,
			TimeIn:       defaultStagedTimeIn,
		}
	}
	return s
}

func (s *Staging) entry(id string) (*StagedEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotStaged, "%q", id)
	}
	return e, nil
}

// SetStatus stages a status for the instructor and selects them.
func (s *Staging) SetStatus(instructorID string, status Status) error {
	if !status.Valid() {
		return errors.Wrapf(ErrInvalidStatus, "%q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(instructorID)
	if err != nil {
		return err
	}
	e.Status = status
	e.Selected = true
	return nil
}

// SetTimeIn stages a check-in time for the instructor and selects them.
// Only allowed while the staged status is present.
func (s *Staging) SetTimeIn(instructorID, timeIn string) error {
	if _, err := ParseClock(timeIn); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(instructorID)
	if err != nil {
		return err
	}
	if e.Status != StatusPresent {
		return errors.Wrapf(ErrTimeInDisabled, "%q is %s", instructorID, e.Status)
	}
	e.TimeIn = timeIn
	e.Selected = true
	return nil
}

func (s *Staging) Select(instructorID string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(instructorID)
	if err != nil {
		return err
	}
	e.Selected = checked
	return nil
}

// SelectAll sets the selection of every entry, leaving staged statuses and times as they are.
func (s *Staging) SelectAll(checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		e.Selected = checked
	}
}

// Entries returns a copy of all staged entries in roster order.
func (s *Staging) Entries() []StagedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StagedEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	return out
}

// Selected returns a copy of the selected entries in roster order.
func (s *Staging) Selected() []StagedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StagedEntry
	for _, id := range s.order {
		if e := s.entries[id]; e.Selected {
			out = append(out, *e)
		}
	}
	return out
}

func (s *Staging) Get(instructorID string) (StagedEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[instructorID]
	if !ok {
		return StagedEntry{}, false
	}
	return *e, true
}

func (s *Staging) clearSelected(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			e.Selected = false
		}
	}
}
