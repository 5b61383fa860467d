package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/linguadesk/staffdesk/core/attendance"
)

type instructorApi struct {
	roster attendance.Roster
}

func registerInstructorAPI(g *echo.Group, jwt echo.MiddlewareFunc, roster attendance.Roster) {
	api := instructorApi{roster: roster}

	ig := g.Group("/instructors", jwt, operatorMiddleware)
	ig.GET("", api.list)
}

func (api *instructorApi) list(ctx echo.Context) error {
	instructors, err := api.roster.ListInstructors(ctx.Request().Context(), ctx.QueryParam("school_id"))
	if err != nil {
		return errors.Wrap(err, "listing instructors")
	}
	return ctx.JSON(http.StatusOK, instructors)
}
