package cli

import (
	"context"
	"errors"
	"fmt"

	"finwise/internal/assistant"
	"finwise/internal/backend"
	"finwise/internal/config"
	"finwise/internal/log"
	"finwise/internal/store"
)

// App is the wired object graph behind every command.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Backend   *backend.BackendResult
	Store     *store.Store
	Assistant *assistant.Gateway
}

// OpenApp builds storage, the data store and the assistant gateway from cfg.
func OpenApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	opts := []store.Option{store.WithLogger(logger)}
	if res.Notifier != nil {
		opts = append(opts, store.WithNotifier(res.Notifier))
	}
	st, err := store.Open(ctx, res.Storage, opts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open store: %w", err), res.Close())
	}

	gw, err := assistant.New(ctx, res.Storage, st.DeviceID(), st,
		assistant.WithLogger(logger),
		assistant.WithTimeout(cfg.AssistantTimeout),
		assistant.WithTemperature(cfg.AssistantTemperature),
		assistant.WithMaxTokens(cfg.AssistantMaxTokens),
		assistant.WithHistoryLimit(cfg.AssistantHistoryLimit),
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open assistant: %w", err), res.Close())
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Backend:   res,
		Store:     st,
		Assistant: gw,
	}, nil
}

func (a *App) Close() error {
	return a.Backend.Close()
}
