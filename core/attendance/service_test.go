package attendance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguadesk/staffdesk/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	m.sent = append(m.sent, messages...)
	m.mu.Unlock()
}

// fakeStore is a minimal Repository and Roster counting calls.
type fakeStore struct {
	mu          sync.Mutex
	instructors []Instructor
	records     map[string]Record
	seq         int
	failFor     map[string]bool // instructor ids whose creates fail
	creates     []Record
	queries     int
	onQuery     func() // runs once, after the next query has read the records
}

func newFakeStore(instructors ...Instructor) *fakeStore {
	return &fakeStore{instructors: instructors, records: make(map[string]Record), failFor: make(map[string]bool)}
}

func (s *fakeStore) ListInstructors(_ context.Context, schoolID string) ([]Instructor, error) {
	var out []Instructor
	for _, ins := range s.instructors {
		if schoolID == "" || ins.SchoolID == schoolID {
			out = append(out, ins)
		}
	}
	return out, nil
}

func (s *fakeStore) QueryRecords(_ context.Context, filter QueryFilter) ([]Record, error) {
	s.mu.Lock()
	s.queries++
	var out []Record
	for _, rec := range s.records {
		if filter.InstructorID != "" && rec.InstructorID != filter.InstructorID {
			continue
		}
		out = append(out, rec)
	}
	hook := s.onQuery
	s.onQuery = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *fakeStore) GetRecord(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) CreateRecord(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, rec)
	if s.failFor[rec.InstructorID] {
		return Record{}, errors.New("store unavailable")
	}
	s.seq++
	rec.ID = fmt.Sprintf("r%d", s.seq)
	rec.Version = 1
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *fakeStore) UpdateRecord(_ context.Context, id string, ur UpdateRecord, updatedAt time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if ur.Version != nil && *ur.Version != rec.Version {
		return Record{}, ErrVersionConflict
	}
	rec = ur.Apply(rec)
	rec.Version++
	rec.UpdatedAt = updatedAt
	s.records[id] = rec
	return rec, nil
}

func (s *fakeStore) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func newTestService(t *testing.T, store *fakeStore, mailer core.EmailService) *Service {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Notify.LateArrivalRecipients = []string{"office@school.test"}
	svc, err := NewService(store, store, mailer, conf, nopLogger{})
	require.NoError(t, err)
	return svc
}

func TestService_Create(t *testing.T) {
	store := newFakeStore(testRoster...)
	svc := newTestService(t, store, &fakeMailer{})
	ctx := context.Background()

	rec, err := svc.Create(ctx, NewRecord{
		InstructorID: "a",
		Date:         "2025-03-10T06:00:00Z",
		Status:       StatusPresent,
		TimeIn:       "07:05",
	}, core.Operator{})
	require.NoError(t, err)
	assert.Equal(t, StatusLate, rec.Status)
	assert.Equal(t, "2025-03-10", rec.Date)
	assert.Equal(t, "system", rec.RecordedBy)

	rec, err = svc.Create(ctx, NewRecord{InstructorID: "b", Date: "2025-03-10", Status: StatusPresent, TimeIn: "06:45"},
		core.Operator{ID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, "op-1", rec.RecordedBy)

	_, err = svc.Create(ctx, NewRecord{InstructorID: "b", Date: "2025-03-10", Status: StatusPresent, TimeIn: "7h"}, core.Operator{})
	assert.True(t, core.IsValidation(err))
	_, err = svc.Create(ctx, NewRecord{InstructorID: "b", Date: "nope", Status: StatusPresent}, core.Operator{})
	assert.True(t, core.IsValidation(err))
	assert.Len(t, store.creates, 2)
}

func TestService_UpdateDelete(t *testing.T) {
	store := newFakeStore(testRoster...)
	svc := newTestService(t, store, &fakeMailer{})
	ctx := context.Background()

	rec, err := svc.Create(ctx, NewRecord{InstructorID: "a", Date: "2025-03-10", Status: StatusAbsent}, core.Operator{})
	require.NoError(t, err)

	present, timeIn := StatusPresent, "07:30"
	updated, err := svc.Update(ctx, rec.ID, UpdateRecord{Status: &present, TimeIn: &timeIn})
	require.NoError(t, err)
	assert.Equal(t, StatusLate, updated.Status, "late check-ins are reclassified on update too")
	assert.Equal(t, 2, updated.Version)

	stale := 1
	comments := "late bus"
	_, err = svc.Update(ctx, rec.ID, UpdateRecord{Comments: &comments, Version: &stale})
	assert.Equal(t, ErrVersionConflict, errors.Cause(err))

	current := 2
	updated, err = svc.Update(ctx, rec.ID, UpdateRecord{Comments: &comments, Version: &current})
	require.NoError(t, err)
	assert.Equal(t, "late bus", updated.Comments)

	_, err = svc.Update(ctx, "missing", UpdateRecord{Comments: &comments})
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	require.NoError(t, svc.Delete(ctx, rec.ID))
	assert.Equal(t, ErrNotFound, errors.Cause(svc.Delete(ctx, rec.ID)))
}

func TestService_Update_Patches(t *testing.T) {
	store := newFakeStore(testRoster...)
	svc := newTestService(t, store, &fakeMailer{})
	ctx := context.Background()

	// legacy row holding a check-in the classifier rejects
	legacy, err := store.CreateRecord(ctx, Record{InstructorID: "a", Date: "2025-03-10", Status: StatusPresent, TimeIn: "7h05"})
	require.NoError(t, err)

	stale := 3
	_, err = svc.Update(ctx, legacy.ID, UpdateRecord{Version: &stale})
	assert.Equal(t, ErrVersionConflict, errors.Cause(err), "a version-only patch is still checked")

	current := 1
	got, err := svc.Update(ctx, legacy.ID, UpdateRecord{Version: &current})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	comments := "clock was broken"
	got, err = svc.Update(ctx, legacy.ID, UpdateRecord{Comments: &comments})
	require.NoError(t, err)
	assert.Equal(t, "clock was broken", got.Comments)
	assert.Equal(t, StatusPresent, got.Status)
	assert.Equal(t, "7h05", got.TimeIn)

	timeIn := "07:45"
	got, err = svc.Update(ctx, legacy.ID, UpdateRecord{TimeIn: &timeIn})
	require.NoError(t, err)
	assert.Equal(t, StatusLate, got.Status)

	bad := Status("vacation")
	_, err = svc.Update(ctx, legacy.ID, UpdateRecord{Status: &bad})
	require.Error(t, err)
	verr := errors.Cause(err).(*core.ValidationError)
	assert.Equal(t, "status", verr.Fields[0].Field)
}

func TestService_StatsCache(t *testing.T) {
	store := newFakeStore(testRoster...)
	svc := newTestService(t, store, &fakeMailer{})
	ctx := context.Background()

	_, err := svc.Create(ctx, NewRecord{InstructorID: "a", Date: "2025-03-10", Status: StatusPresent, TimeIn: "06:50"}, core.Operator{})
	require.NoError(t, err)

	scope, _ := ParseScope("2025-03", "s1")
	rep, err := svc.Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 100, rep.Stats[0].AttendanceRate)
	assert.Equal(t, 1, store.queries)

	_, err = svc.Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 1, store.queries, "served from cache")

	_, err = svc.Create(ctx, NewRecord{InstructorID: "a", Date: "2025-03-11", Status: StatusAbsent}, core.Operator{})
	require.NoError(t, err)

	rep, err = svc.Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, store.queries, "write invalidated the month")
	assert.Equal(t, 50, rep.Stats[0].AttendanceRate)
}

func TestService_StatsCache_WriteDuringRead(t *testing.T) {
	store := newFakeStore(testRoster...)
	svc := newTestService(t, store, &fakeMailer{})
	ctx := context.Background()
	scope, _ := ParseScope("2025-03", "s1")

	store.onQuery = func() {
		_, err := svc.Create(ctx, NewRecord{InstructorID: "a", Date: "2025-03-10", Status: StatusAbsent}, core.Operator{})
		require.NoError(t, err)
	}
	rep, err := svc.Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Stats[0].RecordedDays, "read before the write")

	rep, err = svc.Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, store.queries, "the report read during the write was not cached")
	assert.Equal(t, 1, rep.Stats[0].RecordedDays)
	assert.Equal(t, 1, rep.Stats[0].AbsentDays)

	_, err = svc.Stats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, store.queries, "served from cache")
}

func TestService_SubmitBulk_NothingSelected(t *testing.T) {
	store := newFakeStore(testRoster...)
	svc := newTestService(t, store, &fakeMailer{})

	st := NewStaging(testRoster)
	_, err := svc.SubmitBulk(context.Background(), st, "2025-03-10", core.Operator{})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, ErrNothingSelected, errors.Cause(err).(*core.ValidationError).Err)
	assert.Empty(t, store.creates)
}

func TestService_SubmitBulk_InvalidTime(t *testing.T) {
	store := newFakeStore(testRoster...)
	svc := newTestService(t, store, &fakeMailer{})

	st := NewStaging(testRoster)
	st.SelectAll(true)
	st.entries["b"].TimeIn = "ab:cd"

	_, err := svc.SubmitBulk(context.Background(), st, "2025-03-10", core.Operator{})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Empty(t, store.creates, "no write is issued when a staged entry is invalid")
}

func TestService_SubmitBulk_PartialFailure(t *testing.T) {
	store := newFakeStore(testRoster...)
	store.failFor["b"] = true
	svc := newTestService(t, store, &fakeMailer{})

	st := NewStaging(testRoster)
	st.SelectAll(true)

	res, err := svc.SubmitBulk(context.Background(), st, "2025-03-10", core.Operator{ID: "op"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, store.creates, 3, "no retry")
	assert.Len(t, store.records, 2, "no rollback")

	require.Len(t, res.Items, 3)
	assert.NoError(t, res.Items[0].Err())
	assert.Error(t, res.Items[1].Err())
	assert.NotEmpty(t, res.Items[1].Error)
	assert.Nil(t, res.Items[1].Record)

	// only the failed instructor stays selected
	selected := st.Selected()
	require.Len(t, selected, 1)
	assert.Equal(t, "b", selected[0].InstructorID)
}

func TestService_SubmitBulk_Scenario(t *testing.T) {
	store := newFakeStore(testRoster...)
	mailer := &fakeMailer{}
	svc := newTestService(t, store, mailer)
	ctx := context.Background()

	st, err := svc.NewStaging(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, st.SetTimeIn("a", "07:05"))
	require.NoError(t, st.SetStatus("b", StatusAbsent))

	res, err := svc.SubmitBulk(ctx, st, "2025-03-10", core.Operator{ID: "op"})
	require.NoError(t, err)

	require.Len(t, store.creates, 2)
	byInstructor := map[string]Record{}
	for _, rec := range store.creates {
		byInstructor[rec.InstructorID] = rec
	}
	assert.Equal(t, StatusLate, byInstructor["a"].Status)
	assert.Equal(t, "07:05", byInstructor["a"].TimeIn)
	assert.Equal(t, StatusAbsent, byInstructor["b"].Status)
	assert.Empty(t, byInstructor["b"].TimeIn)
	assert.Equal(t, "op", byInstructor["a"].RecordedBy)
	_, ok := byInstructor["c"]
	assert.False(t, ok)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.LateArrivals, 1)
	assert.Equal(t, LateArrival{InstructorID: "a", Name: "Ana", TimeIn: "07:05"}, res.LateArrivals[0])
	assert.True(t, res.Items[0].Reclassified)
	assert.Empty(t, st.Selected())

	cRecords, err := store.QueryRecords(ctx, QueryFilter{InstructorID: "c"})
	require.NoError(t, err)
	assert.Empty(t, cRecords)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, lateArrivalsTemplate, msg.TemplateName)
	assert.Equal(t, "office@school.test", msg.To[0].Address)
	assert.Equal(t, "s1", msg.TemplateData.(lateArrivalsData).SchoolID)
}

func TestService_SubmitBulk_FailedLateArrivalNotReported(t *testing.T) {
	store := newFakeStore(testRoster...)
	store.failFor["a"] = true
	mailer := &fakeMailer{}
	svc := newTestService(t, store, mailer)

	st := NewStaging(testRoster)
	require.NoError(t, st.SetTimeIn("a", "07:30"))

	res, err := svc.SubmitBulk(context.Background(), st, "2025-03-10", core.Operator{ID: "op"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.Items[0].Reclassified)
	assert.Empty(t, res.LateArrivals)
	assert.Empty(t, mailer.sent)
}
