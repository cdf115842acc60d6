package message

import (
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"github.com/Franklin1312/ChainPass/metrics"
)

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func addMiddlewares(router *message.Router, retry RetryConfig, logger watermill.LoggerAdapter) {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 10
	}
	if retry.InitialInterval == 0 {
		retry.InitialInterval = time.Millisecond * 100
	}
	if retry.MaxInterval == 0 {
		retry.MaxInterval = time.Second
	}

	router.AddMiddleware(correlationIDMiddleware)
	router.AddMiddleware(loggerMiddleware)
	router.AddMiddleware(handlerLogMiddleware)
	router.AddMiddleware(dropFailedMiddleware)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      retry.MaxRetries,
		InitialInterval: retry.InitialInterval,
		MaxInterval:     retry.MaxInterval,
		Multiplier:      2,
		Logger:          logger,
	}.Middleware)
}

func correlationIDMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := middleware.MessageCorrelationID(msg)
		if correlationID == "" {
			correlationID = "gen_" + shortuuid.New()
		}

		ctx := log.ContextWithCorrelationID(msg.Context(), correlationID)
		msg.SetContext(ctx)

		return next(msg)
	}
}

func loggerMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := log.CorrelationIDFromContext(msg.Context())
		ctx := log.ToContext(msg.Context(), logrus.WithFields(logrus.Fields{
			"message_uuid":   msg.UUID,
			"correlation_id": correlationID,
			"event_name":     msg.Metadata.Get("name"),
		}))
		msg.SetContext(ctx)

		return next(msg)
	}
}

func handlerLogMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		logger := log.FromContext(msg.Context())
		logger.Debug("Handling a message")

		msgs, err := next(msg)

		if err != nil {
			logger.WithError(err).Error("Message handling error")
		}

		return msgs, err
	}
}

// dropFailedMiddleware acks a message whose retries are exhausted so one bad
// event does not stall its stream. The mirror stays stale until a later event
// or a backfill corrects it.
func dropFailedMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		msgs, err := next(msg)
		if err == nil {
			return msgs, nil
		}
		if msg.Context().Err() != nil {
			// Shutting down: leave it for redelivery.
			return nil, err
		}

		metrics.EventsDropped.WithLabelValues(msg.Metadata.Get("name")).Inc()
		log.FromContext(msg.Context()).WithError(err).Error("Dropping ledger event after retries")

		return nil, nil
	}
}
