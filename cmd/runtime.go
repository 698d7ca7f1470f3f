package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	r "github.com/redis/go-redis/v9"

	"github.com/geofetch/geofetch/pkg/acquire"
	"github.com/geofetch/geofetch/pkg/cache"
	"github.com/geofetch/geofetch/pkg/observability"
	"github.com/geofetch/geofetch/pkg/redis"
)

// splitList splits a comma separated argument, dropping blank entries
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// newRedisClient returns nil when no Redis URL is configured
func newRedisClient(cfg *CLIConfig) (*r.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil //nolint:nilnil // redis is optional
	}

	client, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return client, nil
}

// searchCache shares ESGF search results through Redis when available
func searchCache(cfg *CLIConfig, client *r.Client) cache.Cache {
	if client == nil {
		return cache.NewMemoryCache()
	}

	return cache.NewRedisCache(client, cfg.Redis.Prefix)
}

// startMetrics starts the metrics server; the flag takes precedence over
// the config file. The returned func stops it.
func startMetrics(cfg *CLIConfig) func() {
	addr := metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}

	observability.StartMetricsServer(logger, addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := observability.StopMetricsServer(ctx); err != nil {
			logger.WithError(err).Warn("Failed to stop metrics server")
		}
	}
}

func printReport(w io.Writer, report *acquire.Report, dryRun bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Run:\t%s\n", report.RunID)
	fmt.Fprintf(tw, "Work units:\t%d\n", report.Planned)

	if dryRun {
		fmt.Fprintf(tw, "Dry run:\tnothing fetched\n")
		return
	}

	fmt.Fprintf(tw, "Files downloaded:\t%d\n", len(report.Files))
	fmt.Fprintf(tw, "Failed units:\t%d\n", report.Failures)
	fmt.Fprintf(tw, "Written:\t%d\n", len(report.Written))
	fmt.Fprintf(tw, "Merged:\t%d\n", len(report.Merged))

	if len(report.Missing) > 0 {
		missing := make([]string, len(report.Missing))
		for i, d := range report.Missing {
			missing[i] = d.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "Missing dates:\t%s\n", strings.Join(missing, ", "))
	}

	if report.Config != "" {
		fmt.Fprintf(tw, "Configuration:\t%s\n", report.Config)
	}
}
