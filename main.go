package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Franklin1312/ChainPass/backfill"
	"github.com/Franklin1312/ChainPass/config"
	"github.com/Franklin1312/ChainPass/ledger"
	"github.com/Franklin1312/ChainPass/listener"
	"github.com/Franklin1312/ChainPass/memory"
	"github.com/Franklin1312/ChainPass/message"
	"github.com/Franklin1312/ChainPass/postgres"
	"github.com/Franklin1312/ChainPass/service"
	"github.com/Franklin1312/ChainPass/validation"
)

type options struct {
	configPath      string
	backfillOnly    bool
	backfillOnStart bool
}

func main() {
	var opts options
	pflag.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	pflag.BoolVar(&opts.backfillOnly, "backfill", false, "run one backfill sweep and exit")
	pflag.BoolVar(&opts.backfillOnStart, "backfill-on-start", false, "backfill the mirror once the ledger subscription is up")
	pflag.Parse()

	log.Init(logrus.InfoLevel)
	logger := watermill.NewStdLogger(false, false)

	if err := run(opts, logger); err != nil {
		logger.Error("failed to run", err, nil)
		os.Exit(1)
	}
}

func run(opts options, logger watermill.LoggerAdapter) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	log.Init(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := ledger.Dial(ctx, ledger.Config{
		RPCURL:          cfg.Ledger.RPCURL,
		WSURL:           cfg.Ledger.WSURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		PrivateKey:      cfg.Ledger.PrivateKey,
		ChainID:         cfg.Ledger.ChainID,
	})
	if err != nil {
		return fmt.Errorf("connecting to ledger: %w", err)
	}
	defer client.Close()

	var (
		dbConn *sqlx.DB
		store  service.Store = memory.NewStore()
	)
	if cfg.Postgres.URL != "" {
		dbConn, err = sqlx.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to db: %w", err)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close db connection", err, nil)
			}
		}()

		if err := postgres.InitialiseDB(ctx, dbConn); err != nil {
			return fmt.Errorf("initialising db: %w", err)
		}
		store = postgres.NewStore(dbConn)
	}

	backfillConfig := backfill.Config{
		MaxEventID:   cfg.Sync.MaxEventID,
		MaxTokenID:   cfg.Sync.MaxTokenID,
		GapTolerance: cfg.Sync.GapTolerance,
	}

	if opts.backfillOnly {
		report, err := backfill.New(client, store, backfillConfig).Run(ctx)
		if err != nil {
			return fmt.Errorf("running backfill: %w", err)
		}
		logrus.WithField("event_gaps", report.EventGaps).
			WithField("ticket_gaps", report.TicketGaps).
			Info("Backfill finished")
		return nil
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis connection", err, nil)
			}
		}()
	}

	transport, err := message.NewTransport(cfg.Queue.Backend, dbConn, rdb, logger)
	if err != nil {
		return fmt.Errorf("creating queue transport: %w", err)
	}

	svc, err := service.New(logger, transport, client, store, service.Config{
		HTTPAddr:   cfg.HTTP.Addr,
		AdminToken: cfg.HTTP.AdminToken,
		Retry: message.RetryConfig{
			MaxRetries:      cfg.Queue.MaxRetries,
			InitialInterval: cfg.Queue.RetryDelay,
		},
		MaxLag: cfg.Sync.MaxLag,
		Reconnect: listener.Config{
			InitialInterval: cfg.Sync.ReconnectMin,
			MaxInterval:     cfg.Sync.ReconnectMax,
		},
		Backfill:          backfillConfig,
		BackfillOnStart:   opts.backfillOnStart,
		ReconcileInterval: cfg.Sync.ReconcileInterval,
		Validation: validation.Config{
			ConfirmationTimeout: cfg.Ledger.ConfirmationTimeout,
			Confirmations:       cfg.Ledger.Confirmations,
		},
	})
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	return svc.Run(ctx)
}
