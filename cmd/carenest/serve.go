package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/api"
	audithook "github.com/gaurav-seth/carenest-helper/audit_hook"
	"github.com/gaurav-seth/carenest-helper/config"
	"github.com/gaurav-seth/carenest-helper/dwp"
	"github.com/gaurav-seth/carenest-helper/engine"
	"github.com/gaurav-seth/carenest-helper/sink"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"run"},
		Short:   "Run the HTTP API, the DWP endpoint, and any embedded helpers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http.addr)")
	return cmd
}

// buildEngine opens the configured backends and wires an engine over
// them. The returned closers hold clients the hub does not close.
func buildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...engine.Option) (*engine.Engine, closers, error) {
	var res closers
	st, err := openStore(ctx, cfg.Store, logger, &res)
	if err != nil {
		_ = res.Close()
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if cfg.Store.Migrate {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			_ = res.Close()
			return nil, nil, err
		}
	}
	bus, err := openBus(cfg.Bus, logger, &res)
	if err != nil {
		_ = st.Close()
		_ = res.Close()
		return nil, nil, fmt.Errorf("open bus: %w", err)
	}

	hub, err := carenest.New(
		carenest.WithConfig(cfg.HubConfig()),
		carenest.WithLogger(logger),
		carenest.WithStore(st),
		carenest.WithBus(bus),
	)
	if err != nil {
		_ = bus.Close()
		_ = st.Close()
		_ = res.Close()
		return nil, nil, err
	}
	eng, err := engine.Build(hub, opts...)
	if err != nil {
		_ = hub.Stop(ctx)
		_ = res.Close()
		return nil, nil, err
	}
	return eng, res, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var engOpts []engine.Option
	if cfg.HTTP.Prometheus {
		engOpts = append(engOpts, engine.WithPrometheus(prometheus.DefaultRegisterer))
	}
	if cfg.Log.Audit {
		engOpts = append(engOpts, engine.WithExtension(
			audithook.New(audithook.NewLogRecorder(logger.With(slog.String("component", "audit"))), audithook.WithLogger(logger)),
		))
	}
	eng, res, err := buildEngine(ctx, cfg, logger, engOpts...)
	if err != nil {
		return err
	}
	defer res.Close()

	for _, h := range cfg.Helpers {
		var helperOpts []sink.Option
		if len(h.Locations) > 0 {
			helperOpts = append(helperOpts, sink.WithPolicy(sink.LocationPolicy(h.Locations...)))
		}
		eng.AddHelper(h.Phone, helperOpts...)
	}

	if err := eng.Start(ctx); err != nil {
		_ = eng.Stop(context.WithoutCancel(ctx))
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.New(eng, api.WithLogger(logger)).Handler()
	dwpServer := dwp.NewServer(dwp.NewHandler(eng, logger),
		dwp.WithAuth(authenticator(cfg.APIKeys)),
		dwp.WithLogger(logger),
		dwp.WithPath(cfg.HTTP.DWPPath),
	)
	dwpServer.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("carenest listening",
			slog.String("addr", cfg.HTTP.Addr),
			slog.String("store", cfg.Store.Driver),
			slog.String("bus", cfg.Bus.Driver),
			slog.Int("embedded_helpers", len(cfg.Helpers)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout.Std())
	defer cancel()
	logger.Info("carenest shutting down")
	_ = dwpServer.Close()
	httpErr := srv.Shutdown(shutdownCtx)
	return errors.Join(httpErr, eng.Stop(shutdownCtx))
}

// authenticator builds the DWP authenticator from the configured keys.
// With none configured every token is accepted.
func authenticator(keys []config.APIKey) dwp.Authenticator {
	if len(keys) == 0 {
		return dwp.NoopAuthenticator{}
	}
	entries := make([]dwp.APIKeyEntry, 0, len(keys))
	for _, k := range keys {
		scopes := k.Scopes
		if len(scopes) == 0 {
			scopes = dwp.HelperScopes
		}
		entries = append(entries, dwp.APIKeyEntry{
			Token:    k.Token,
			Identity: dwp.Identity{Subject: k.Subject, Scopes: scopes},
		})
	}
	return dwp.NewAPIKeyAuthenticator(entries...)
}
