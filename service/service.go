package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Franklin1312/ChainPass/backfill"
	"github.com/Franklin1312/ChainPass/http"
	"github.com/Franklin1312/ChainPass/listener"
	"github.com/Franklin1312/ChainPass/message"
	"github.com/Franklin1312/ChainPass/validation"
	"github.com/Franklin1312/ChainPass/worker"
)

type Ledger interface {
	backfill.Ledger
	message.Ledger
	validation.Ledger
	listener.Ledger
}

type Store interface {
	message.Store
	validation.Store
	http.MirrorReader
}

type Config struct {
	HTTPAddr   string
	AdminToken string

	Retry     message.RetryConfig
	MaxLag    time.Duration
	Reconnect listener.Config

	Backfill          backfill.Config
	BackfillOnStart   bool
	ReconcileInterval time.Duration

	Validation validation.Config
}

type Service struct {
	config     Config
	msgRouter  *message.Router
	httpRouter *echo.Echo
	listener   *listener.Listener
	reconciler *worker.Reconciler
}

func New(
	logger watermill.LoggerAdapter,
	transport message.Transport,
	l Ledger,
	store Store,
	config Config,
) (*Service, error) {
	msgRouter, err := message.NewRouter(message.RouterDeps{
		Ledger:    l,
		Logger:    logger,
		Store:     store,
		Transport: transport,
		Retry:     config.Retry,
		MaxLag:    config.MaxLag,
	})
	if err != nil {
		return nil, fmt.Errorf("creating message router: %w", err)
	}

	eventBus, err := message.NewEventBus(transport.Publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	reconciler := worker.NewReconciler(backfill.New(l, store, config.Backfill), config.ReconcileInterval)

	httpRouter := http.NewRouter(http.RouterDeps{
		Validator:  validation.NewValidator(l, store, config.Validation),
		Mirror:     store,
		Backfiller: reconciler,
		AdminToken: config.AdminToken,
	})

	return &Service{
		config:     config,
		msgRouter:  msgRouter,
		httpRouter: httpRouter,
		listener:   listener.New(l, eventBus, config.Reconnect),
		reconciler: reconciler,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.msgRouter.Run(runCtx); err != nil {
			return fmt.Errorf("running messaging router: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		// Events must not be published before their handlers subscribe.
		select {
		case <-s.msgRouter.Running():
		case <-runCtx.Done():
			return nil
		}

		if err := s.listener.Run(runCtx); err != nil {
			return fmt.Errorf("running ledger listener: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		select {
		case <-s.listener.Running():
		case <-runCtx.Done():
			return nil
		}

		// Backfill after subscribing, so nothing emitted in between is missed.
		if s.config.BackfillOnStart {
			if _, err := s.reconciler.Backfill(runCtx); err != nil && runCtx.Err() == nil {
				log.FromContext(runCtx).WithError(err).Error("Initial backfill failed")
			}
		}

		return s.reconciler.Run(runCtx)
	})

	g.Go(func() error {
		select {
		case <-s.msgRouter.Running():
		case <-runCtx.Done():
			return nil
		}

		logrus.WithField("addr", s.config.HTTPAddr).Info("Starting HTTP server...")
		err := s.httpRouter.Start(s.config.HTTPAddr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logrus.Info("Shutting down HTTP server...")
		if err := s.httpRouter.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for shutdown: %w", err)
	}
	logrus.Info("Shutdown complete.")

	return nil
}
