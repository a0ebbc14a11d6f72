// Package main provides the derivdiff CLI, which regression-tests model
// derivatives against accepted baselines.
//
// Commands:
//   - run <bucket> <object> [--update] : extract derivatives and compare them
//     with the stored baseline, or replace the baseline with --update
//   - compare <baselineDir> <currentDir> : compare two local derivative trees
//   - baseline download|upload <testName> <dir> : move baselines by hand
//   - images <a> <b> [--threshold] : compare two raster images
//
// Exit status is 0 on success, 1 when a comparison or transfer fails and 2
// on usage errors.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"derivdiff/internal/config"
	"derivdiff/internal/logging"
	"derivdiff/internal/metrics"
	"derivdiff/internal/report"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks errors caused by bad invocations.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usage(err error) error {
	if err == nil {
		return nil
	}
	return usageError{err}
}

// app carries the resolved configuration shared by every command.
type app struct {
	v       *viper.Viper
	cfg     config.Config
	logger  log.Logger
	metrics *metrics.Recorder
	stdout  io.Writer
	stderr  io.Writer
}

// execute runs the CLI with args and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{v: viper.New(), logger: log.NewNopLogger(), metrics: metrics.NewRecorder(), stdout: stdout, stderr: stderr}
	root, err := a.rootCmd()
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitFailure
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err = root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, "ERROR:", err)
	if _, ok := err.(usageError); ok {
		return exitUsage
	}
	return exitFailure
}

func (a *app) rootCmd() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "derivdiff",
		Short:         "Regression-test model derivatives against stored baselines",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usage(fmt.Errorf("unknown command %q", args[0]))
			}
			return cmd.Help()
		},
	}
	if err := config.BindFlags(a.v, root.PersistentFlags()); err != nil {
		return nil, err
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usage(err) })
	root.AddCommand(a.runCmd(), a.compareCmd(), a.baselineCmd(), a.imagesCmd())
	return root, nil
}

// load resolves the configuration and builds the logger.
func (a *app) load() error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return usage(err)
	}
	if err := cfg.CheckCommon(); err != nil {
		return usage(err)
	}
	logger, err := logging.New(a.stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return usage(err)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// positional wraps a cobra positional argument validator so its failures count as
// usage errors.
func positional(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usage(fn(cmd, args))
	}
}

// finish writes the metrics file and the failure report when configured,
// and passes the run outcome through.
func (a *app) finish(test, mode string, err error) error {
	if a.cfg.MetricsFile != "" {
		if werr := a.metrics.WriteFile(a.cfg.MetricsFile); werr != nil {
			level.Warn(a.logger).Log("msg", "cannot write metrics", "err", werr)
		}
	}
	if a.cfg.Report != "" {
		if werr := report.WriteFile(a.cfg.Report, report.New(test, mode, err)); werr != nil {
			level.Warn(a.logger).Log("msg", "cannot write report", "err", werr)
		}
	}
	return err
}
