package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/flowbridge/internal/app"
	"github.com/specialistvlad/flowbridge/internal/cli"
	"github.com/specialistvlad/flowbridge/internal/executor"
)

// main is the entrypoint for the flowbridge application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	cmd, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Registration panics are programmer errors; report them as a clean
	// startup failure instead of a stack trace.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	flowbridge, err := app.NewApp(outW, cmd.Settings)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := flowbridge.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	switch cmd.Name {
	case "serve":
		return flowbridge.Serve(ctx)
	default:
		report, err := flowbridge.RunFlow(ctx, app.RunOptions{
			GraphPath: cmd.Run.Graph,
			TestMode:  cmd.Run.Test,
			TraceMode: cmd.Run.Trace,
			Only:      cmd.Run.Only,
			FromRun:   cmd.Run.FromRun,
		})
		if err != nil {
			return err
		}
		if report.Status == executor.PartiallyFailed {
			return &cli.ExitError{Code: 1, Message: report.Summary()}
		}
		return nil
	}
}
