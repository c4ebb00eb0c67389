package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"finwise/internal/log"

	apihttp "finwise/internal/http"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = net.JoinHostPort("", e.cfg.Port)
			}
			ctx, stop := SignalContext(cmd.Context())
			defer stop()
			return runServer(ctx, app, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")

	return cmd
}

func runServer(ctx context.Context, app *App, addr string) error {
	srv := apihttp.NewServer(apihttp.Options{
		Addr:               addr,
		Store:              app.Store,
		Assistant:          app.Assistant,
		Storage:            app.Backend.Storage,
		Logger:             app.Logger,
		RateLimitPerMinute: app.Config.RateLimitPerMinute,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("Starting HTTP server",
			"addr", addr,
			"backend", app.Config.DataBackend,
			log.FieldDeviceID, app.Store.DeviceID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
