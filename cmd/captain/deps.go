package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"aicaptain/internal/catalog"
	"aicaptain/internal/config"
	"aicaptain/internal/events"
	"aicaptain/internal/session"
	"aicaptain/internal/store"
	"aicaptain/internal/transport"
)

// redisPrefix namespaces the keys and channels captain writes to Redis.
const redisPrefix = "captain"

// deps are the collaborators shared by every command.
type deps struct {
	creds   session.Credentials
	bus     events.Bus
	client  *transport.Client
	loader  *catalog.Loader
	history store.RouteHistory

	closers []func() error
}

func newCredentials(cfg config.Config) (session.Credentials, func() error, error) {
	switch cfg.Credentials.Backend {
	case config.BackendMemory:
		return session.NewMemory(cfg.Credentials.Token), nil, nil
	case config.BackendFile:
		return session.NewFile(cfg.Credentials.Path), nil, nil
	case config.BackendRedis:
		r, err := session.NewRedis(cfg.RedisURL, redisPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("redis credentials: %w", err)
		}
		return r, r.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown credentials backend %q", cfg.Credentials.Backend)
}

func newBus(cfg config.Config) (events.Bus, func() error, error) {
	if cfg.EventsBackend == "redis" {
		rb, err := events.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis events: %w", err)
		}
		return rb, rb.Close, nil
	}
	return events.NewBroker(), nil, nil
}

func newHistory(ctx context.Context, cfg config.Config, log *zap.Logger) (store.RouteHistory, func() error, error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemory(), nil, nil
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("route history: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("route history migrate: %w", err)
	}
	log.Info("route history on postgres")
	return pg, pg.Close, nil
}

// buildDeps wires the client stack. A 401 from the service clears the
// credential and publishes session.expired so dashboards redirect to login.
func buildDeps(ctx context.Context, cfg config.Config, log *zap.Logger) (*deps, error) {
	d := &deps{}
	var closer func() error
	var err error

	if d.creds, closer, err = newCredentials(cfg); err != nil {
		return nil, err
	}
	d.addCloser(closer)
	if d.bus, closer, err = newBus(cfg); err != nil {
		d.Close()
		return nil, err
	}
	d.addCloser(closer)
	if d.history, closer, err = newHistory(ctx, cfg, log); err != nil {
		d.Close()
		return nil, err
	}
	d.addCloser(closer)

	bus := d.bus
	d.client = transport.New(cfg.APIBaseURL, d.creds,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithLogger(log.Named("transport")),
		transport.WithUnauthorizedHandler(func(context.Context) {
			bus.Publish(events.TopicSession, events.Event{
				Type: events.TypeSessionExpired,
				Data: map[string]any{"redirect": "/login"},
			})
		}))
	d.loader = catalog.NewLoader(d.client, log.Named("catalog"))
	return d, nil
}

func (d *deps) addCloser(fn func() error) {
	if fn != nil {
		d.closers = append(d.closers, fn)
	}
}

func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
