package attendance

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/linguadesk/staffdesk/core"
)

var (
	// errors
	ErrNotFound        = errors.New("attendance record not found")
	ErrVersionConflict = errors.New("attendance record was modified by someone else")
	ErrNothingSelected = errors.New("select at least one instructor")
)

type (
	// Repository is the attendance records store.
	Repository interface {
		// QueryRecords applies AND operation on the set QueryFilter fields.
		// QueryFilter.Date matches a whole day or, when it is a YYYY-MM month, every day of that month.
		QueryRecords(ctx context.Context, filter QueryFilter) ([]Record, error)
		GetRecord(ctx context.Context, id string) (Record, error)
		// CreateRecord stores rec, superseding any record of the same instructor and day.
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		// UpdateRecord returns ErrVersionConflict when ur.Version is set and differs from the stored one.
		UpdateRecord(ctx context.Context, id string, ur UpdateRecord, updatedAt time.Time) (Record, error)
		DeleteRecord(ctx context.Context, id string) error
	}

	// Roster lists the instructors of a school. An empty schoolID lists every instructor.
	Roster interface {
		ListInstructors(ctx context.Context, schoolID string) ([]Instructor, error)
	}

	Service struct {
		repo       Repository
		roster     Roster
		mailSvc    core.EmailService
		logger     core.Logger
		classifier Classifier
		stats      *statsCache[Report]

		bulkConcurrency int
		systemIdentity  string
		lateRecipients  []mail.Address
	}

	// BulkItem is the outcome of one instructor's create request.
	BulkItem struct {
		InstructorID string  `json:"instructor_id"`
		Status       Status  `json:"status"`
		Reclassified bool    `json:"reclassified"`
		Record       *Record `json:"record,omitempty"`
		Error        string  `json:"error,omitempty"`

		err error
	}

	BulkResult struct {
		Date         string        `json:"date"`
		Succeeded    int           `json:"succeeded"`
		Failed       int           `json:"failed"`
		Items        []BulkItem    `json:"items"`
		LateArrivals []LateArrival `json:"late_arrivals"`
	}
)

func (item BulkItem) Err() error { return item.err }

func NewService(repo Repository, roster Roster, mailSvc core.EmailService, conf *core.Config, logger core.Logger) (*Service, error) {
	classifier, err := NewClassifier(conf.Attendance.LateThreshold)
	if err != nil {
		return nil, err
	}
	concurrency := conf.Attendance.BulkConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		repo:            repo,
		roster:          roster,
		mailSvc:         mailSvc,
		logger:          logger,
		classifier:      classifier,
		stats:           newStatsCache[Report](conf.Attendance.StatsCacheTTL),
		bulkConcurrency: concurrency,
		systemIdentity:  core.StringOr(conf.Attendance.SystemIdentity, "system"),
		lateRecipients:  parseRecipients(conf.Notify.LateArrivalRecipients),
	}, nil
}

func (svc *Service) Classifier() Classifier { return svc.classifier }

func (svc *Service) recordedBy(op core.Operator) string {
	return core.StringOr(op.ID, svc.systemIdentity)
}

func timeFieldError(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
}

func classifyFieldError(err error) error {
	if errors.Cause(err) == ErrInvalidStatus {
		return timeFieldError("status", err)
	}
	return timeFieldError("time_in", err)
}

// Create records the attendance of one instructor, applying the late-arrival policy.
func (svc *Service) Create(ctx context.Context, nr NewRecord, op core.Operator) (Record, error) {
	day, err := NormalizeDate(nr.Date)
	if err != nil {
		return Record{}, timeFieldError("date", err)
	}
	status, _, err := svc.classifier.Classify(nr.Status, nr.TimeIn)
	if err != nil {
		return Record{}, classifyFieldError(err)
	}

	now := time.Now().UTC()
	rec, err := svc.repo.CreateRecord(ctx, Record{
		InstructorID: nr.InstructorID,
		Date:         day,
		Status:       status,
		TimeIn:       nr.TimeIn,
		TimeOut:      nr.TimeOut,
		Comments:     nr.Comments,
		RecordedBy:   svc.recordedBy(op),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Record{}, err
	}
	svc.stats.InvalidateDay(day)
	return rec, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Record, error) {
	return svc.repo.GetRecord(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	filter.Clean()
	return svc.repo.QueryRecords(ctx, filter)
}

// Update patches a record. A present record whose check-in ends up after the threshold becomes late.
func (svc *Service) Update(ctx context.Context, id string, ur UpdateRecord) (Record, error) {
	current, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if ur.Version != nil && *ur.Version != current.Version {
		return Record{}, ErrVersionConflict
	}
	if ur.IsEmpty() {
		return current, nil
	}

	// stored check-ins are only reclassified when the patch touches them
	if ur.Status != nil || ur.TimeIn != nil {
		merged := ur.Apply(current)
		status, reclassified, err := svc.classifier.Classify(merged.Status, merged.TimeIn)
		if err != nil {
			return Record{}, classifyFieldError(err)
		}
		if reclassified {
			ur.Status = &status
		}
	}

	rec, err := svc.repo.UpdateRecord(ctx, id, ur, time.Now().UTC())
	if err != nil {
		return Record{}, err
	}
	svc.invalidate(current.Date)
	return rec, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	current, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteRecord(ctx, id); err != nil {
		return err
	}
	svc.invalidate(current.Date)
	return nil
}

func (svc *Service) invalidate(date string) {
	if day, err := NormalizeDate(date); err == nil {
		svc.stats.InvalidateDay(day)
	}
}

// Stats aggregates the attendance of a school's roster over the scope's period.
// Reports are cached until a write touches the period; a report read while a write
// lands is returned but not cached.
func (svc *Service) Stats(ctx context.Context, scope Scope) (Report, error) {
	if rep, ok := svc.stats.Get(scope); ok {
		return rep, nil
	}

	gen := svc.stats.Generation(scope)
	instructors, err := svc.roster.ListInstructors(ctx, scope.SchoolID)
	if err != nil {
		return Report{}, errors.Wrap(err, "listing instructors")
	}
	records, err := svc.repo.QueryRecords(ctx, QueryFilter{SchoolID: scope.SchoolID, Date: scope.Period})
	if err != nil {
		return Report{}, errors.Wrap(err, "querying records")
	}

	rep := Aggregate(instructors, records, scope)
	if len(rep.Skipped) > 0 {
		svc.logger.Warn(fmt.Sprintf("attendance.Stats(%s): %d records skipped", scope.Key(), len(rep.Skipped)))
	}
	svc.stats.Set(scope, rep, gen)
	return rep, nil
}

// NewStaging starts a bulk editing session over a school's roster.
func (svc *Service) NewStaging(ctx context.Context, schoolID string) (*Staging, error) {
	instructors, err := svc.roster.ListInstructors(ctx, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "listing instructors")
	}
	st := NewStaging(instructors)
	st.SchoolID = schoolID
	return st, nil
}

// SubmitBulk records the selected staged entries for date.
// Validation happens before any write. Creates are dispatched concurrently and each one
// succeeds or fails on its own: nothing is retried or rolled back. Succeeded entries are unselected.
func (svc *Service) SubmitBulk(ctx context.Context, staging *Staging, date string, op core.Operator) (BulkResult, error) {
	day, err := NormalizeDate(date)
	if err != nil {
		return BulkResult{}, timeFieldError("date", err)
	}
	selected := staging.Selected()
	if len(selected) == 0 {
		return BulkResult{}, core.NewValidationError(ErrNothingSelected,
			core.FieldError{Field: "instructors", Error: ErrNothingSelected.Error()})
	}

	result := BulkResult{
		Date:         day,
		Items:        make([]BulkItem, len(selected)),
		LateArrivals: []LateArrival{},
	}
	var fieldErrs []core.FieldError
	for i, entry := range selected {
		status, reclassified, err := svc.classifier.Classify(entry.Status, entry.TimeIn)
		if err != nil {
			fieldErrs = append(fieldErrs, core.FieldError{Field: entry.InstructorID, Error: errors.Cause(err).Error()})
			continue
		}
		result.Items[i] = BulkItem{InstructorID: entry.InstructorID, Status: status, Reclassified: reclassified}
	}
	if len(fieldErrs) > 0 {
		return BulkResult{}, core.NewValidationError(ErrInvalidTimeFormat, fieldErrs...)
	}

	recordedBy := svc.recordedBy(op)
	now := time.Now().UTC()

	var g errgroup.Group
	g.SetLimit(svc.bulkConcurrency)
	for i, entry := range selected {
		i, entry := i, entry
		rec := Record{
			InstructorID: entry.InstructorID,
			Date:         day,
			Status:       result.Items[i].Status,
			RecordedBy:   recordedBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if rec.Status.AcceptsTimes() {
			rec.TimeIn = entry.TimeIn
		}
		g.Go(func() error {
			created, err := svc.repo.CreateRecord(ctx, rec)
			if err != nil {
				result.Items[i].err = err
				result.Items[i].Error = err.Error()
				return nil
			}
			result.Items[i].Record = &created
			return nil
		})
	}
	_ = g.Wait()

	succeeded := make([]string, 0, len(selected))
	for i, item := range result.Items {
		if item.err != nil {
			result.Failed++
			svc.logger.Error(fmt.Sprintf("attendance.SubmitBulk(%s, %s): %v", day, item.InstructorID, item.err), item.err, op)
			continue
		}
		result.Succeeded++
		succeeded = append(succeeded, item.InstructorID)
		// only stored late arrivals are reported
		if item.Reclassified {
			result.LateArrivals = append(result.LateArrivals, LateArrival{
				InstructorID: item.InstructorID,
				Name:         selected[i].Name,
				TimeIn:       selected[i].TimeIn,
			})
		}
	}
	staging.clearSelected(succeeded)
	if result.Succeeded > 0 {
		svc.stats.InvalidateDay(day)
	}

	if len(result.LateArrivals) > 0 && len(svc.lateRecipients) > 0 && svc.mailSvc != nil {
		svc.mailSvc.SendMessages(newLateArrivalsMessage(svc.lateRecipients, day, staging.SchoolID, recordedBy, result.LateArrivals))
	}
	return result, nil
}
