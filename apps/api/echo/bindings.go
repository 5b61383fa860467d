package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the `ordering` query param, eg. `?ordering=-date,instructor_id`.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func bindQueryFilter(ctx echo.Context) attendance.QueryFilter {
	filter := attendance.QueryFilter{
		SchoolID:     ctx.QueryParam("school_id"),
		InstructorID: ctx.QueryParam("instructor_id"),
		Date:         ctx.QueryParam("date"),
	}
	filter.Clean()

	var ord Ordering
	ord.Bind(ctx)
	filter.Ordering = ord.Orderings
	return filter
}
