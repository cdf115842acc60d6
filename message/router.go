package message

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
)

type RouterDeps struct {
	Ledger    Ledger
	Logger    watermill.LoggerAdapter
	Store     Store
	Transport Transport
	Retry     RetryConfig
	MaxLag    time.Duration
}

type Router struct {
	*message.Router
}

// NewRouter wires one handler per ledger event type. Each handler consumes
// its own topic, so events of one type are applied in order while different
// types are independent.
func NewRouter(deps RouterDeps) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	addMiddlewares(router, deps.Retry, deps.Logger)

	config := cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return deps.Transport.NewSubscriber(params.HandlerName)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: marshaler,
		Logger:    deps.Logger,
	}

	ep, err := cqrs.NewEventProcessorWithConfig(router, config)
	if err != nil {
		return nil, fmt.Errorf("creating event processor: %w", err)
	}

	h := NewHandler(deps.Ledger, deps.Store, deps.MaxLag)

	handlers := []cqrs.EventHandler{
		cqrs.NewEventHandler("mirror-event-created", h.EventCreated),
		cqrs.NewEventHandler("mirror-event-deactivated", h.EventDeactivated),
		cqrs.NewEventHandler("mirror-ticket-minted", h.TicketMinted),
		cqrs.NewEventHandler("mirror-ticket-listed", h.TicketListed),
		cqrs.NewEventHandler("mirror-listing-cancelled", h.ListingCancelled),
		cqrs.NewEventHandler("mirror-ticket-sold", h.TicketSold),
		cqrs.NewEventHandler("mirror-ticket-used", h.TicketUsed),
	}

	if err := ep.AddHandlers(handlers...); err != nil {
		return nil, fmt.Errorf("adding handlers: %w", err)
	}

	return &Router{router}, nil
}
