package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/client"
	"github.com/gaurav-seth/carenest-helper/sink"
)

func newHelperCmd(flags *rootFlags) *cobra.Command {
	var (
		url       string
		token     string
		format    string
		phone     string
		locations []string
		rate      float64
	)
	cmd := &cobra.Command{
		Use:     "helper",
		Short:   "Listen for jobs on a remote server and claim them as one helper",
		Example: `  carenest helper --url ws://localhost:8080/dwp --token ck_helper --phone +15557001 --location Koramangala`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if phone == "" {
				return fmt.Errorf("--phone is required")
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c, err := client.DialContext(ctx, url,
				client.WithToken(token),
				client.WithFormat(format),
				client.WithLogger(logger),
				client.WithReconnect(cfg.Claims.MaxAttempts, backoff.ClaimStrategy()),
			)
			if err != nil {
				return err
			}
			defer c.Close()

			opts := []sink.Option{
				sink.WithSubscriberID("helper-" + phone),
				sink.WithLogger(logger),
				sink.WithRetry(backoff.ClaimStrategy(), cfg.Claims.MaxAttempts),
				sink.WithOnOutcome(func(r sink.Result) {
					if r.Skipped {
						return
					}
					logger.Info("job settled",
						slog.String("job_id", r.JobID.String()),
						slog.String("location", r.Location),
						slog.String("outcome", string(r.Outcome)),
					)
				}),
			}
			if len(locations) > 0 {
				opts = append(opts, sink.WithPolicy(sink.LocationPolicy(locations...)))
			}
			if rate > 0 {
				opts = append(opts, sink.WithRateLimit(rate, 1))
			}
			return runListener(ctx, sink.NewListener(phone, c, c, opts...))
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/dwp", "DWP endpoint")
	cmd.Flags().StringVar(&token, "token", os.Getenv("CARENEST_TOKEN"), "API key")
	cmd.Flags().StringVar(&format, "format", "json", "Wire format: json|msgpack")
	cmd.Flags().StringVar(&phone, "phone", "", "Helper phone number, used as the worker reference")
	cmd.Flags().StringSliceVar(&locations, "location", nil, "Only claim jobs whose location contains this (repeatable)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Maximum claims per second (0 = unlimited)")
	return cmd
}

func runListener(ctx context.Context, l *sink.Listener) error {
	if err := l.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
