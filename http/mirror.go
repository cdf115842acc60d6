package http

import (
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Franklin1312/ChainPass/entity"
)

type eventWithTickets struct {
	entity.Event
	Tickets []entity.Ticket `json:"tickets"`
}

func (h handler) ListEvents(c echo.Context) error {
	return h.listEvents(c, entity.EventFilter{})
}

func (h handler) ListActiveEvents(c echo.Context) error {
	return h.listEvents(c, entity.EventFilter{ActiveOnly: true})
}

func (h handler) listEvents(c echo.Context, filter entity.EventFilter) error {
	events, err := collect(h.mirror.FindEvents(c.Request().Context(), filter))
	if err != nil {
		return internalError(fmt.Errorf("listing events: %w", err))
	}

	return c.JSON(http.StatusOK, events)
}

func (h handler) GetEvent(c echo.Context) error {
	eventID, err := idParam(c, "eventId")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	e, err := h.mirror.GetEvent(ctx, eventID)
	if errors.Is(err, entity.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Event not found"})
	}
	if err != nil {
		return internalError(fmt.Errorf("getting event %d: %w", eventID, err))
	}

	tickets, err := collect(h.mirror.FindTickets(ctx, entity.TicketFilter{EventID: eventID}))
	if err != nil {
		return internalError(fmt.Errorf("listing tickets of event %d: %w", eventID, err))
	}

	return c.JSON(http.StatusOK, eventWithTickets{Event: e, Tickets: tickets})
}

func (h handler) GetTicket(c echo.Context) error {
	tokenID, err := idParam(c, "tokenId")
	if err != nil {
		return err
	}

	ticket, err := h.mirror.GetTicket(c.Request().Context(), tokenID)
	if errors.Is(err, entity.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Ticket not found"})
	}
	if err != nil {
		return internalError(fmt.Errorf("getting ticket %d: %w", tokenID, err))
	}

	return c.JSON(http.StatusOK, ticket)
}

func (h handler) ListTicketsByOwner(c echo.Context) error {
	owner := c.Param("address")

	tickets, err := collect(h.mirror.FindTickets(c.Request().Context(), entity.TicketFilter{Owner: owner}))
	if err != nil {
		return internalError(fmt.Errorf("listing tickets of %s: %w", owner, err))
	}

	return c.JSON(http.StatusOK, tickets)
}

func (h handler) ListActiveListings(c echo.Context) error {
	tickets, err := collect(h.mirror.FindTickets(c.Request().Context(), entity.TicketFilter{ListedOnly: true}))
	if err != nil {
		return internalError(fmt.Errorf("listing resale offers: %w", err))
	}

	return c.JSON(http.StatusOK, tickets)
}

// collect drains seq into a non-nil slice, so empty results encode as [].
func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := []T{}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func internalError(err error) *echo.HTTPError {
	return &echo.HTTPError{
		Code:     http.StatusInternalServerError,
		Message:  http.StatusText(http.StatusInternalServerError),
		Internal: err,
	}
}
