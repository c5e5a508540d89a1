// o008ctl runs a single registry command against the configured store.
//
// The command is pushed through a one-shot command queue together with
// Quit. A successful result is printed as "publish <indented json>"; a domain
// error is logged and the process exits with status 1. A panic inside an
// action is fatal and exits with status 2.
//
// Usage:
//
//	o008ctl create-tenant --name acme
//	o008ctl get-service --name billing --app payments --tenant acme
//	o008ctl --log-level debug --env-file prod.env get-builder --name docker
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/o008/registry/coreengine/action"
	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/config"
	"github.com/o008/registry/coreengine/dispatcher"
	"github.com/o008/registry/coreengine/kernel"
	"github.com/o008/registry/coreengine/observability"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitFatal  = 2
)

// exitError carries the process exit status out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// cli holds the global flags and output streams.
type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	envFile  string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(stderr, "o008ctl: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(stderr, "o008ctl: %v\n", err)
	return exitFailed
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "o008ctl",
		Short:         "Manage deployment metadata in the o008 registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "optional .env file loaded before the environment")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error (default O008_LOG_LEVEL)")

	root.AddGroup(
		&cobra.Group{ID: "tenant", Title: "Tenants and builders:"},
		&cobra.Group{ID: "service", Title: "Applications and services:"},
	)
	for _, cmd := range c.commands() {
		root.AddCommand(cmd)
	}
	return root
}

// dispatch runs cmd through a one-shot command queue.
func (c *cli) dispatch(ctx context.Context, cmd command.AppCommand) error {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger := observability.NewLogger(c.stderr, cfg.Log.Level, cfg.Log.Format)

	st, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	defer st.Close()

	d := dispatcher.New(action.NewService(st, logger),
		dispatcher.NewLoggingMiddleware(logger),
		dispatcher.NewMetricsMiddleware(),
	)

	var failed bool
	q := kernel.NewCommandQueue(d, cfg.Queue.Kernel(), logger, kernel.ResultHandlers{
		OnResult: func(_ command.DispatchCommand, value command.Value) {
			c.publish(value)
		},
		OnError: func(dc command.DispatchCommand, err error) {
			failed = true
			logger.Error("command_failed", "command", dc.Name(), "error", err.Error())
		},
	})

	if err := q.RunOnce(ctx, command.App(cmd)); err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	if failed {
		return &exitError{code: exitFailed}
	}
	return nil
}

func (c *cli) publish(value command.Value) {
	var out bytes.Buffer
	if err := json.Indent(&out, value, "", "  "); err != nil {
		fmt.Fprintf(c.stdout, "publish %s\n", value)
		return
	}
	fmt.Fprintf(c.stdout, "publish %s\n", out.String())
}
