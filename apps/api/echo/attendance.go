package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, validate *validator.Validate) {
	api := attendanceApi{svc: svc, validate: validate}

	ag := g.Group("/attendance", jwt, operatorMiddleware)
	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.GET("/stats", api.stats)
	ag.POST("/bulk", api.bulk)

	// detail endpoints
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy, adminMiddleware)
}

// Requests

type (
	BulkEntry struct {
		InstructorID string            `json:"instructor_id" validate:"required,notblank"`
		Status       attendance.Status `json:"status" validate:"omitempty,attstatus"`
		TimeIn       string            `json:"time_in" validate:"omitempty,clock"`
		Selected     *bool             `json:"selected"`
	}

	// BulkRequest stages a school's roster for a day and submits it.
	// Setting an entry's status or time in selects it; Selected overrides that.
	BulkRequest struct {
		Date      string      `json:"date" validate:"required,day"`
		SchoolID  string      `json:"school_id"`
		SelectAll bool        `json:"select_all"`
		Entries   []BulkEntry `json:"entries" validate:"dive"`
	}
)

func (br *BulkRequest) Validate(validate *validator.Validate) error {
	br.Date = core.CleanString(br.Date)
	br.SchoolID = core.CleanString(br.SchoolID)
	for i := range br.Entries {
		e := &br.Entries[i]
		e.InstructorID = core.CleanString(e.InstructorID)
		e.Status = attendance.Status(core.CleanString(string(e.Status), true /* lower */))
		e.TimeIn = core.CleanString(e.TimeIn)
	}
	return validate.Struct(br)
}

// Stage applies the request onto a fresh staging of the roster.
func (br BulkRequest) Stage(st *attendance.Staging) error {
	if br.SelectAll {
		st.SelectAll(true)
	}
	var fldErrs []core.FieldError
	for i, e := range br.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		if e.Status != "" {
			if err := st.SetStatus(e.InstructorID, e.Status); err != nil {
				fldErrs = append(fldErrs, core.FieldError{Field: field, Error: err.Error()})
				continue
			}
		}
		if e.TimeIn != "" {
			if err := st.SetTimeIn(e.InstructorID, e.TimeIn); err != nil {
				fldErrs = append(fldErrs, core.FieldError{Field: field, Error: err.Error()})
				continue
			}
		}
		if e.Selected != nil {
			if err := st.Select(e.InstructorID, *e.Selected); err != nil {
				fldErrs = append(fldErrs, core.FieldError{Field: field, Error: err.Error()})
			}
		}
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	return nil
}

// Handlers

func (api *attendanceApi) query(ctx echo.Context) error {
	filter := bindQueryFilter(ctx)
	if err := api.validate.Struct(filter); err != nil {
		return err
	}

	records, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) create(ctx echo.Context) error {
	var data attendance.NewRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Create(ctx.Request().Context(), data, contextOperator(ctx))
	if err != nil {
		return errors.Wrap(err, "creating attendance record")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	rec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attendance record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	var data attendance.UpdateRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating attendance record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) stats(ctx echo.Context) error {
	scope, err := attendance.ParseScope(ctx.QueryParam("period"), ctx.QueryParam("school_id"))
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "period", Error: errors.Cause(err).Error()})
	}

	rep, err := api.svc.Stats(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "computing attendance stats")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *attendanceApi) bulk(ctx echo.Context) error {
	var data BulkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	staging, err := api.svc.NewStaging(reqCtx, data.SchoolID)
	if err != nil {
		return errors.Wrap(err, "staging roster")
	}
	if err = data.Stage(staging); err != nil {
		return err
	}

	res, err := api.svc.SubmitBulk(reqCtx, staging, data.Date, contextOperator(ctx))
	if err != nil {
		return errors.Wrap(err, "submitting bulk attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}
