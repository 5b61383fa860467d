package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

const recordColumns = `id, instructor_id, date, status, time_in, time_out, comments, recorded_by, version, created_at, updated_at`

// orderable api fields -> columns
var recordOrderings = map[string]string{
	"date":          "r.date",
	"instructor_id": "r.instructor_id",
	"status":        "r.status",
	"created_at":    "r.created_at",
	"updated_at":    "r.updated_at",
}

type recordRow struct {
	ID           string      `db:"id"`
	InstructorID string      `db:"instructor_id"`
	Date         time.Time   `db:"date"`
	Status       string      `db:"status"`
	TimeIn       null.String `db:"time_in"`
	TimeOut      null.String `db:"time_out"`
	Comments     null.String `db:"comments"`
	RecordedBy   string      `db:"recorded_by"`
	Version      int         `db:"version"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo attendanceRepository) toRow(rec attendance.Record) (recordRow, error) {
	day, err := attendance.NormalizeDate(rec.Date)
	if err != nil {
		return recordRow{}, err
	}
	date, _ := time.Parse("2006-01-02", day)
	return recordRow{
		ID:           rec.ID,
		InstructorID: rec.InstructorID,
		Date:         date,
		Status:       string(rec.Status),
		TimeIn:       null.NewString(rec.TimeIn, rec.TimeIn != ""),
		TimeOut:      null.NewString(rec.TimeOut, rec.TimeOut != ""),
		Comments:     null.NewString(rec.Comments, rec.Comments != ""),
		RecordedBy:   rec.RecordedBy,
		Version:      rec.Version,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}, nil
}

func (repo attendanceRepository) fromRow(row recordRow) attendance.Record {
	return attendance.Record{
		ID:           row.ID,
		InstructorID: row.InstructorID,
		Date:         row.Date.Format("2006-01-02"),
		Status:       attendance.Status(row.Status),
		TimeIn:       row.TimeIn.String,
		TimeOut:      row.TimeOut.String,
		Comments:     row.Comments.String,
		RecordedBy:   row.RecordedBy,
		Version:      row.Version,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrNotFound
func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// monthRange returns the first day of a YYYY-MM month and the first day of the next one.
func monthRange(month string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.SchoolID != "" {
		where = append(where, "i.school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if filter.InstructorID != "" {
		where = append(where, "r.instructor_id = ?")
		args = append(args, filter.InstructorID)
	}
	if filter.Date != "" {
		period, kind, err := attendance.ParsePeriod(filter.Date)
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: "date", Error: errors.Cause(err).Error()})
		}
		if kind == attendance.PeriodMonth {
			start, end, _ := monthRange(period)
			where = append(where, "r.date >= ? AND r.date < ?")
			args = append(args, start, end)
		} else {
			where = append(where, "r.date = ?")
			args = append(args, period)
		}
	}

	q := "SELECT r." + strings.ReplaceAll(recordColumns, ", ", ", r.") +
		" FROM attendance_records r JOIN instructors i ON i.id = r.instructor_id"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	orderBy := core.OrderByClause(filter.Ordering, recordOrderings)
	if orderBy == "" {
		orderBy = "r.date ASC, r.instructor_id ASC"
	}
	q += " ORDER BY " + orderBy

	var rows []recordRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, repo.fromRow(row))
	}
	return records, nil
}

func (repo attendanceRepository) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Record{}, attendance.ErrNotFound
	}
	var row recordRow
	q := "SELECT " + recordColumns + " FROM attendance_records WHERE id = $1"
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "getting attendance record")
	}
	return repo.fromRow(row), nil
}

// CreateRecord inserts rec; an existing record of the same instructor and day is superseded
// (its id and created_at are kept, its version is bumped).
func (repo attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	rec.ID = uuid.New().String()
	rec.Version = 1
	row, err := repo.toRow(rec)
	if err != nil {
		return attendance.Record{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: errors.Cause(err).Error()})
	}

	q := `INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (:id, :instructor_id, :date, :status, :time_in, :time_out, :comments, :recorded_by, :version, :created_at, :updated_at)
		ON CONFLICT (instructor_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			time_in = EXCLUDED.time_in,
			time_out = EXCLUDED.time_out,
			comments = EXCLUDED.comments,
			recorded_by = EXCLUDED.recorded_by,
			version = attendance_records.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + recordColumns

	rows, err := sqlx.NamedQueryContext(ctx, repo.db, q, row)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	defer func() { _ = rows.Close() }()

	var out recordRow
	if !rows.Next() {
		if err = rows.Err(); err == nil {
			err = sql.ErrNoRows
		}
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	if err = rows.StructScan(&out); err != nil {
		return attendance.Record{}, errors.Wrap(err, "scanning attendance record")
	}
	return repo.fromRow(out), nil
}

func (repo attendanceRepository) UpdateRecord(ctx context.Context, id string, ur attendance.UpdateRecord, updatedAt time.Time) (attendance.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Record{}, attendance.ErrNotFound
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var row recordRow
	q := "SELECT " + recordColumns + " FROM attendance_records WHERE id = $1 FOR UPDATE"
	if err = tx.GetContext(ctx, &row, q, id); err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "getting attendance record")
	}
	if ur.Version != nil && *ur.Version != row.Version {
		return attendance.Record{}, attendance.ErrVersionConflict
	}

	rec := ur.Apply(repo.fromRow(row))
	rec.Version++
	rec.UpdatedAt = updatedAt
	if row, err = repo.toRow(rec); err != nil {
		return attendance.Record{}, err
	}

	q = `UPDATE attendance_records SET
			status = :status, time_in = :time_in, time_out = :time_out, comments = :comments,
			version = :version, updated_at = :updated_at
		WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, q, row); err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance record")
	}
	if err = tx.Commit(); err != nil {
		return attendance.Record{}, errors.Wrap(err, "committing attendance record")
	}
	return rec, nil
}

func (repo attendanceRepository) DeleteRecord(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM attendance_records WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}
