package http

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Franklin1312/ChainPass/worker"
)

func bearerAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuth(func(key string, _ echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
	})
}

func (h handler) PostBackfill(c echo.Context) error {
	report, err := h.backfiller.Backfill(c.Request().Context())
	if errors.Is(err, worker.ErrBusy) {
		return &echo.HTTPError{
			Code:    http.StatusConflict,
			Message: err.Error(),
		}
	}
	if err != nil {
		return internalError(fmt.Errorf("running backfill: %w", err))
	}

	return c.JSON(http.StatusOK, report)
}
