package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// operatorMiddleware only lets through tokens that identify an operator.
func operatorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.Subject == "" {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// adminMiddleware restricts an endpoint to admin operators.
func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin {
			return next(ctx)
		}
		return errHttpForbidden
	}
}
