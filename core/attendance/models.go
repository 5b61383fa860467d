package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/linguadesk/staffdesk/core"
)

type Status string

// Statuses
const (
	StatusPresent     Status = "present"
	StatusLate        Status = "late"
	StatusAbsent      Status = "absent"
	StatusSick        Status = "sick"
	StatusPaternity   Status = "paternity"
	StatusPTO         Status = "pto"
	StatusBereavement Status = "bereavement"
)

var AllStatuses = []Status{
	StatusPresent, StatusLate, StatusAbsent, StatusSick, StatusPaternity, StatusPTO, StatusBereavement,
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsAbsence reports whether the status counts as an absent day.
func (s Status) IsAbsence() bool {
	switch s {
	case StatusAbsent, StatusSick, StatusPaternity, StatusPTO, StatusBereavement:
		return true
	}
	return false
}

// AcceptsTimes reports whether check-in/out times are meaningful for the status.
func (s Status) AcceptsTimes() bool {
	return s == StatusPresent || s == StatusLate
}

// Record is one attendance entry of an instructor for a day.
type Record struct {
	ID           string    `json:"id"`
	InstructorID string    `json:"instructor_id"`
	Date         string    `json:"date"` // YYYY-MM-DD; stores may hand back full ISO date-times
	Status       Status    `json:"status"`
	TimeIn       string    `json:"time_in,omitempty"`
	TimeOut      string    `json:"time_out,omitempty"`
	Comments     string    `json:"comments,omitempty"`
	RecordedBy   string    `json:"recorded_by"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Instructor is the slice of an instructor's profile the engine consumes.
type Instructor struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	SchoolID string `json:"school_id" db:"school_id"`
}

// NewRecord contains information needed to record attendance for one instructor.
type NewRecord struct {
	InstructorID string `json:"instructor_id" validate:"required,notblank"`
	Date         string `json:"date" validate:"required,day"`
	Status       Status `json:"status" validate:"required,attstatus"`
	TimeIn       string `json:"time_in" validate:"omitempty,clock"`
	TimeOut      string `json:"time_out" validate:"omitempty,clock"`
	Comments     string `json:"comments"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	nr.InstructorID = core.CleanString(nr.InstructorID)
	nr.Date = core.CleanString(nr.Date)
	nr.Status = Status(core.CleanString(string(nr.Status), true /* lower */))
	nr.TimeIn = core.CleanString(nr.TimeIn)
	nr.TimeOut = core.CleanString(nr.TimeOut)
	nr.Comments = core.CleanString(nr.Comments)
	return validate.Struct(nr)
}

// UpdateRecord defines what may be changed on an existing Record. Nil fields are left untouched.
// When Version is set the update only applies if it matches the stored version.
type UpdateRecord struct {
	Status   *Status `json:"status" validate:"omitempty,attstatus"`
	TimeIn   *string `json:"time_in" validate:"omitempty,clock"`
	TimeOut  *string `json:"time_out" validate:"omitempty,clock"`
	Comments *string `json:"comments"`
	Version  *int    `json:"version" validate:"omitempty,min=1"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	if ur.Status != nil {
		st := Status(core.CleanString(string(*ur.Status), true /* lower */))
		ur.Status = &st
	}
	for _, fld := range []*string{ur.TimeIn, ur.TimeOut, ur.Comments} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(ur)
}

func (ur UpdateRecord) IsEmpty() bool {
	return ur.Status == nil && ur.TimeIn == nil && ur.TimeOut == nil && ur.Comments == nil
}

// Apply returns a copy of rec with the set fields of ur.
func (ur UpdateRecord) Apply(rec Record) Record {
	if ur.Status != nil {
		rec.Status = *ur.Status
	}
	if ur.TimeIn != nil {
		rec.TimeIn = *ur.TimeIn
	}
	if ur.TimeOut != nil {
		rec.TimeOut = *ur.TimeOut
	}
	if ur.Comments != nil {
		rec.Comments = *ur.Comments
	}
	return rec
}

// QueryFilter selects records from the store. Date is either a day (YYYY-MM-DD) or a month (YYYY-MM) prefix.
type QueryFilter struct {
	SchoolID     string `json:"school_id" query:"school_id"`
	InstructorID string `json:"instructor_id" query:"instructor_id"`
	Date         string `json:"date" query:"date" validate:"omitempty,period"`

	Ordering []core.DBOrdering `json:"-" query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.SchoolID = core.CleanString(qf.SchoolID)
	qf.InstructorID = core.CleanString(qf.InstructorID)
	qf.Date = core.CleanString(qf.Date)
}

// InstructorStat is the attendance summary of one instructor over a Scope.
type InstructorStat struct {
	InstructorID   string   `json:"instructor_id"`
	Name           string   `json:"name,omitempty"`
	PresentDays    int      `json:"present_days"`
	LateDays       int      `json:"late_days"`
	AbsentDays     int      `json:"absent_days"`
	RecordedDays   int      `json:"recorded_days"`
	AttendanceRate int      `json:"attendance_rate"` // percent
	Records        []Record `json:"records"`
}

// SkippedRecord is a fetched record that could not take part in aggregation.
type SkippedRecord struct {
	Record Record `json:"record"`
	Reason string `json:"reason"`
}

// Report is the aggregation output for a Scope.
type Report struct {
	Scope        Scope            `json:"scope"`
	Stats        []InstructorStat `json:"stats"`
	DistinctDays int              `json:"distinct_days"`
	Skipped      []SkippedRecord  `json:"skipped,omitempty"`
}
