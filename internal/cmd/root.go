package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/phaseflow/internal/config"
	"github.com/felixgeelhaar/phaseflow/internal/log"
	"github.com/felixgeelhaar/phaseflow/internal/metrics"
	"github.com/felixgeelhaar/phaseflow/internal/telemetry"
	"github.com/felixgeelhaar/phaseflow/internal/version"
)

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
	noColor     bool
}

// cli carries what subcommands share. It is filled in by the root
// command's PersistentPreRunE and released by close.
type cli struct {
	opts rootOptions

	cfg      *config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	span             trace.Span
	shutdownTracing  func(context.Context) error
	skipInitCommands map[string]bool
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{skipInitCommands: map[string]bool{"version": true, "help": true, "completion": true}}

	root := &cobra.Command{
		Use:   "phaseflow",
		Short: "Drive multi-phase work through role-based workers",
		Long: `phaseflow classifies a change's tasks, picks a phase template and drives
each phase through the worker for its role. Failed responses are retried with
feedback, exhausted retries escalate to a person, and the whole run is
persisted so it can be resumed at any point.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.skipInitCommands[cmd.Name()] {
				return nil
			}
			return c.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.opts.configPath, "config", "", "config file (default "+config.DefaultPath+")")
	flags.StringVar(&c.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&c.opts.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&c.opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.BoolVar(&c.opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newSetupCmd(c),
		newAdvanceCmd(c),
		newStatusCmd(c),
		newResolveCmd(c),
		newAbortCmd(c),
		newListCmd(c),
		newClassifyCmd(c),
		newDoctorCmd(c),
		newVersionCmd(),
	)
	return root, c
}

// ExecuteContext runs the CLI with ctx, cancelled on interrupt by main
func ExecuteContext(ctx context.Context) error {
	root, c := newRootCmd()
	return c.run(ctx, root)
}

func (c *cli) run(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if cerr := c.close(context.WithoutCancel(ctx), err); err == nil {
		err = cerr
	}
	return err
}

// init loads configuration and sets up logging, metrics and tracing
func (c *cli) init(cmd *cobra.Command) error {
	if c.opts.noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(c.opts.configPath)
	if err != nil {
		return ConfigLoadError(c.opts.configPath, err)
	}
	if c.opts.logLevel != "" {
		cfg.Log.Level = c.opts.logLevel
	}
	if c.opts.logFormat != "" {
		cfg.Log.Format = c.opts.logFormat
	}
	if c.opts.metricsFile == "" {
		c.opts.metricsFile = cfg.Metrics.Textfile
	}
	c.cfg = cfg

	logCfg := cfg.LogSettings()
	logCfg.Output = cmd.ErrOrStderr()
	c.logger = log.New(logCfg)
	log.SetDefaultLogger(c.logger)

	c.registry, c.metrics = metrics.NewRegistry()

	shutdown, err := telemetry.InitProvider(cmd.Context(), cfg.TelemetrySettings(version.GetInfo().Version))
	if err != nil {
		c.logger.WithError(err).Warn("failed to initialize tracing")
	} else {
		c.shutdownTracing = shutdown
	}

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.Name())
	c.span = span
	cmd.SetContext(ctx)
	return nil
}

// close ends the command span, flushes traces and writes metrics
func (c *cli) close(ctx context.Context, runErr error) error {
	if c.span != nil {
		if runErr != nil {
			telemetry.RecordError(c.span, runErr)
		} else {
			telemetry.RecordSuccess(c.span)
		}
		c.span.End()
	}
	if c.shutdownTracing != nil {
		if err := c.shutdownTracing(ctx); err != nil {
			c.logger.WithError(err).Warn("failed to flush traces")
		}
	}
	if c.opts.metricsFile != "" && c.registry != nil {
		if err := metrics.WriteTextfile(c.registry, c.opts.metricsFile); err != nil {
			return fmt.Errorf("write metrics file: %w", err)
		}
	}
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
