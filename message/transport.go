package message

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const (
	BackendGoChannel = "gochannel"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
)

const consumerGroupPrefix = "chainpass-mirror."

// Transport carries ledger events from the listener to the projection
// handlers. Every handler gets its own subscriber.
type Transport struct {
	Publisher     message.Publisher
	NewSubscriber func(handlerName string) (message.Subscriber, error)
}

// NewGoChannelTransport keeps events in process. Publishing blocks until the
// handler acks, which keeps events of one type in order.
func NewGoChannelTransport(logger watermill.LoggerAdapter) Transport {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	return Transport{
		Publisher: pubSub,
		NewSubscriber: func(string) (message.Subscriber, error) {
			return pubSub, nil
		},
	}
}

func NewRedisTransport(rdb *redis.Client, logger watermill.LoggerAdapter) (Transport, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("creating redis publisher: %w", err)
	}

	return Transport{
		Publisher: publisher,
		NewSubscriber: func(handlerName string) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        rdb,
				ConsumerGroup: consumerGroupPrefix + handlerName,
			}, logger)
		},
	}, nil
}

func NewPostgresTransport(db *sqlx.DB, logger watermill.LoggerAdapter) (Transport, error) {
	publisher, err := watermillSQL.NewPublisher(db, watermillSQL.PublisherConfig{
		SchemaAdapter:        watermillSQL.DefaultPostgreSQLSchema{},
		AutoInitializeSchema: true,
	}, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("creating sql publisher: %w", err)
	}

	return Transport{
		Publisher: publisher,
		NewSubscriber: func(handlerName string) (message.Subscriber, error) {
			return watermillSQL.NewSubscriber(db, watermillSQL.SubscriberConfig{
				ConsumerGroup:    consumerGroupPrefix + handlerName,
				SchemaAdapter:    watermillSQL.DefaultPostgreSQLSchema{},
				OffsetsAdapter:   watermillSQL.DefaultPostgreSQLOffsetsAdapter{},
				InitializeSchema: true,
			}, logger)
		},
	}, nil
}

// NewTransport picks the transport for the configured backend.
func NewTransport(backend string, db *sqlx.DB, rdb *redis.Client, logger watermill.LoggerAdapter) (Transport, error) {
	switch backend {
	case "", BackendGoChannel:
		return NewGoChannelTransport(logger), nil
	case BackendRedis:
		if rdb == nil {
			return Transport{}, fmt.Errorf("queue backend %q needs a redis address", backend)
		}
		return NewRedisTransport(rdb, logger)
	case BackendPostgres:
		if db == nil {
			return Transport{}, fmt.Errorf("queue backend %q needs a postgres url", backend)
		}
		return NewPostgresTransport(db, logger)
	default:
		return Transport{}, fmt.Errorf("unknown queue backend %q", backend)
	}
}
