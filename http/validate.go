package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"github.com/Franklin1312/ChainPass/entity"
	"github.com/Franklin1312/ChainPass/validation"
)

var outcomeStatus = map[validation.Outcome]int{
	validation.OutcomeValidated:    http.StatusOK,
	validation.OutcomePending:      http.StatusAccepted,
	validation.OutcomeInvalidInput: http.StatusBadRequest,
	validation.OutcomeMismatch:     http.StatusUnauthorized,
	validation.OutcomeNotSynced:    http.StatusNotFound,
	validation.OutcomeAlreadyUsed:  http.StatusConflict,
	validation.OutcomeRejected:     http.StatusInternalServerError,
	validation.OutcomeFailed:       http.StatusInternalServerError,
}

func (h handler) PostValidate(c echo.Context) error {
	var request validation.Request
	if err := c.Bind(&request); err != nil {
		log.FromContext(c.Request().Context()).WithError(err).Info("Malformed validation request")

		return c.JSON(http.StatusBadRequest, validation.Result{
			Message: "tokenId and qrHash are required.",
		})
	}

	result := h.validator.Validate(c.Request().Context(), request)

	status, ok := outcomeStatus[result.Outcome]
	if !ok {
		status = http.StatusInternalServerError
	}

	return c.JSON(status, result)
}

func (h handler) GetValidate(c echo.Context) error {
	tokenID, err := idParam(c, "tokenId")
	if err != nil {
		return err
	}

	status, err := h.validator.Status(c.Request().Context(), tokenID)
	if errors.Is(err, entity.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Ticket not found"})
	}
	if err != nil {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  http.StatusText(http.StatusInternalServerError),
			Internal: fmt.Errorf("reading status of ticket %d: %w", tokenID, err),
		}
	}

	return c.JSON(http.StatusOK, status)
}

type errorResponse struct {
	Error string `json:"error"`
}

func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  fmt.Sprintf("invalid %s", name),
			Internal: fmt.Errorf("parsing %s %q: %w", name, c.Param(name), err),
		}
	}
	return id, nil
}
