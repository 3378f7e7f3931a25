package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/probe"
)

// newProbeCmd creates the probe command, a latency check of the master API
// against a p95 and failure-rate threshold.
func newProbeCmd(opts *rootOptions) *cobra.Command {
	var (
		iterations    int
		concurrency   int
		threshold     time.Duration
		workspaceID   int
		withLogin     bool
		passwordStdin bool
		showMetrics   bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Measure API latency against thresholds",
		Long: `Requests every console endpoint repeatedly and reports p95 latency per endpoint.

The command fails when the overall p95 exceeds --threshold or more than 1% of
requests fail.`,
		Example: `  # Probe with the configured defaults
  detconsole probe

  # Include workspace endpoints and the login call
  detconsole probe --workspace-id 1 --with-login --password-stdin < pass.txt`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, "/probe")
			if err != nil {
				return err
			}
			defer s.Close()

			pc := s.cfg.Probe
			if cmd.Flags().Changed("iterations") {
				pc.Iterations = iterations
			}
			if cmd.Flags().Changed("concurrency") {
				pc.Concurrency = concurrency
			}
			if cmd.Flags().Changed("workspace-id") {
				pc.WorkspaceID = workspaceID
			}
			p95 := time.Duration(pc.P95ThresholdMS) * time.Millisecond
			if cmd.Flags().Changed("threshold") {
				p95 = threshold
			}

			endpoints := probe.DefaultEndpoints(pc.WorkspaceID)
			if withLogin {
				username := s.cfg.Master.User
				if username == "" {
					username = defaultUsername
				}
				password, pwErr := readPassword(cmd, username, passwordStdin)
				if pwErr != nil {
					return pwErr
				}
				endpoints = append(endpoints, probe.LoginEndpoint(username, password))
			}

			ctx := cmd.Context()
			report, err := probe.Run(ctx, s.client, endpoints, probe.Config{
				Iterations:   pc.Iterations,
				Concurrency:  pc.Concurrency,
				P95Threshold: p95,
				Registry:     s.registry,
				Logger:       s.logger,
			})
			if err != nil {
				return s.report(ctx, err)
			}

			if opts.output == OutputJSON {
				err = renderJSON(cmd.OutOrStdout(), report)
			} else {
				err = report.Write(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}
			if showMetrics {
				if err := writeMetrics(cmd.OutOrStdout(), s.registry); err != nil {
					return err
				}
			}

			if !report.Passed() {
				return fmt.Errorf("probe thresholds not met: %s", strings.Join(report.Violations(), "; "))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&iterations, "iterations", probe.DefaultIterations, "requests per endpoint")
	cmd.Flags().IntVar(&concurrency, "concurrency", probe.DefaultConcurrency, "requests in flight at once")
	cmd.Flags().DurationVar(&threshold, "threshold", probe.DefaultP95Threshold, "maximum p95 latency")
	cmd.Flags().IntVar(&workspaceID, "workspace-id", 0, "also probe this workspace's endpoints")
	cmd.Flags().BoolVar(&withLogin, "with-login", false, "also probe the login endpoint")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the login password from stdin")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print the collected metrics in Prometheus text format")

	return cmd
}

// writeMetrics dumps everything gathered by reg in the text exposition format.
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	fmt.Fprintln(w)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
