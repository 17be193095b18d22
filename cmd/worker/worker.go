package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/observability"
)

// Command runs the worker pool until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued notifications",
		Long: "Consume the notification queues and deliver each job at most once. " +
			"Serves /metrics and /healthz when metrics are enabled.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queues, err := queuesFor(kinds)
			if err != nil {
				return err
			}
			return run(cmd.Context(), settings, queues)
		},
	}

	cmd.Flags().Int("concurrency", viper.GetInt("queue.concurrency"), "Consumers per queue")
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "Only consume these notification kinds (default all)")

	// Bound flags override the config file when settings are loaded.
	if err := viper.BindPFlag("queue.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
		fmt.Fprintf(os.Stderr, "error binding flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

// queuesFor maps kind names to queue names. An empty list means every queue.
func queuesFor(kinds []string) ([]string, error) {
	queues := make([]string, 0, len(kinds))
	for _, name := range kinds {
		kind, err := automation.ParseKind(name)
		if err != nil {
			return nil, err
		}
		queues = append(queues, kind.Queue())
	}
	return queues, nil
}

func run(ctx context.Context, settings *conf.Settings, queues []string) error {
	a, err := app.New(ctx, settings, app.Options{Queue: true, Mailer: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	w, err := automation.NewWorker(a.Deps())
	if err != nil {
		return err
	}
	runner, err := automation.NewRunner(a.Queue, w, automation.RunnerConfig{
		Queues:      queues,
		Concurrency: settings.Queue.Concurrency,
		JobTimeout:  settings.Queue.JobTimeout,
	}, a.Metrics.Automation, a.Log)
	if err != nil {
		return err
	}

	var endpoint *observability.Endpoint
	if settings.Metrics.Enabled {
		if endpoint, err = observability.NewEndpoint(&settings.Metrics, a.Metrics, a.HealthChecks(), a.Log); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	if endpoint != nil {
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	err = g.Wait()
	stats := runner.Stats()
	a.Log.Info("worker stopped",
		logger.Int64("processed", int64(stats.Processed)),
		logger.Int64("sent", int64(stats.Sent)),
		logger.Int64("skipped", int64(stats.Skipped)),
		logger.Int64("failed", int64(stats.Failed)),
		logger.Int64("dropped", int64(stats.Dropped)),
		logger.Int64("retried", int64(stats.Retried)))
	return err
}
