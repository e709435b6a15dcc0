package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// statsMetrics are printed in this order by the stats command.
var statsMetrics = []struct {
	name  string
	label string
}{
	{"hassflow_records_enqueued_total", "enqueued"},
	{"hassflow_documents_published_total", "published"},
	{"hassflow_documents_failed_total", "failed"},
	{"hassflow_publish_cycle_errors_total", "cycle_errors"},
	{"hassflow_queue_length", "queue"},
}

func newStatsCmd() *cobra.Command {
	var (
		url      string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Poll the Prometheus metrics endpoint and print live counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Streaming metrics from %s (Ctrl+C to stop)\n", url)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printMetricsSnapshot(ctx, out, url); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "stats error: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	return cmd
}

func printMetricsSnapshot(ctx context.Context, out io.Writer, url string) error {
	values, err := scrape(ctx, url)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[%s]", time.Now().Format(time.RFC3339))
	for _, m := range statsMetrics {
		fmt.Fprintf(out, " %s=%g", m.label, values[m.name])
	}
	fmt.Fprintln(out)
	return nil
}

// scrape returns the value of every unlabelled counter and gauge at url.
func scrape(ctx context.Context, url string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	values := make(map[string]float64, len(families))
	for name, mf := range families {
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) > 0 {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				values[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[name] = m.GetGauge().GetValue()
			}
		}
	}
	return values, nil
}
