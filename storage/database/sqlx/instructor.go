package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

type instructorRepository struct {
	db *sqlx.DB
}

var _ attendance.Roster = (*instructorRepository)(nil) // interface compliance check

func NewInstructorRepository(db *sqlx.DB) *instructorRepository {
	return &instructorRepository{db: db}
}

func (repo instructorRepository) ListInstructors(ctx context.Context, schoolID string) ([]attendance.Instructor, error) {
	q := "SELECT id, name, school_id FROM instructors WHERE is_active"
	var args []interface{}
	if schoolID = core.CleanString(schoolID); schoolID != "" {
		q += " AND school_id = $1"
		args = append(args, schoolID)
	}
	q += " ORDER BY name, id"

	instructors := make([]attendance.Instructor, 0)
	if err := repo.db.SelectContext(ctx, &instructors, q, args...); err != nil {
		return nil, errors.Wrap(err, "listing instructors")
	}
	return instructors, nil
}

func (repo instructorRepository) CreateInstructor(ctx context.Context, ins attendance.Instructor) (attendance.Instructor, error) {
	if ins.ID == "" {
		ins.ID = uuid.New().String()
	}
	q := `INSERT INTO instructors (id, name, school_id) VALUES (:id, :name, :school_id)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, school_id = EXCLUDED.school_id, is_active = TRUE`
	if _, err := repo.db.NamedExecContext(ctx, q, ins); err != nil {
		return attendance.Instructor{}, errors.Wrap(err, "upserting instructor")
	}
	return ins, nil
}
