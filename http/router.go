package http

import (
	"context"
	"iter"
	"net/http"

	commonHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Franklin1312/ChainPass/backfill"
	"github.com/Franklin1312/ChainPass/entity"
	"github.com/Franklin1312/ChainPass/validation"
)

var ErrServerClosed = http.ErrServerClosed

type Validator interface {
	Validate(ctx context.Context, req validation.Request) validation.Result
	Status(ctx context.Context, tokenID uint64) (entity.TicketStatus, error)
}

type MirrorReader interface {
	GetEvent(ctx context.Context, eventID uint64) (entity.Event, error)
	GetTicket(ctx context.Context, tokenID uint64) (entity.Ticket, error)
	FindEvents(ctx context.Context, filter entity.EventFilter) iter.Seq2[entity.Event, error]
	FindTickets(ctx context.Context, filter entity.TicketFilter) iter.Seq2[entity.Ticket, error]
}

type Backfiller interface {
	Backfill(ctx context.Context) (backfill.Report, error)
}

type RouterDeps struct {
	Validator  Validator
	Mirror     MirrorReader
	Backfiller Backfiller
	// AdminToken is the bearer token of the admin endpoints. Empty disables them.
	AdminToken string
}

func NewRouter(deps RouterDeps) *echo.Echo {
	server := commonHTTP.NewEcho()

	server.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	server.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := handler{
		validator:  deps.Validator,
		mirror:     deps.Mirror,
		backfiller: deps.Backfiller,
	}

	api := server.Group("/api")

	api.POST("/validate", h.PostValidate)
	api.GET("/validate/:tokenId", h.GetValidate)

	api.GET("/events", h.ListEvents)
	api.GET("/events/active", h.ListActiveEvents)
	api.GET("/events/:eventId", h.GetEvent)

	api.GET("/tickets/listings/active", h.ListActiveListings)
	api.GET("/tickets/owner/:address", h.ListTicketsByOwner)
	api.GET("/tickets/:tokenId", h.GetTicket)

	if deps.AdminToken != "" && deps.Backfiller != nil {
		admin := api.Group("/admin", bearerAuth(deps.AdminToken))
		admin.POST("/backfill", h.PostBackfill)
	}

	return server
}

type handler struct {
	validator  Validator
	mirror     MirrorReader
	backfiller Backfiller
}
