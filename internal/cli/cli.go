package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/specialistvlad/flowbridge/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// RunCmd executes one flow file.
type RunCmd struct {
	Graph   string   `arg:"positional,required" placeholder:"GRAPH" help:"path to a .json, .yaml, .yml or .hcl flow file"`
	Test    bool     `arg:"--test" help:"run in test mode: nodes validate their wiring without touching external systems"`
	Trace   bool     `arg:"--trace" help:"record spans and persist every node result as soon as it finishes"`
	Only    []string `arg:"--only,separate" help:"re-run only these nodes; other results are read from --from-run"`
	FromRun string   `arg:"--from-run" help:"run id whose stored results feed a partial re-run"`
}

// ServeCmd starts the remote executor API.
type ServeCmd struct {
	Listen string `arg:"--listen" help:"address the API listens on [default: settings server.listen]"`
}

// Args is the full command line.
type Args struct {
	Run   *RunCmd   `arg:"subcommand:run" help:"execute a flow file"`
	Serve *ServeCmd `arg:"subcommand:serve" help:"accept sub-flow runs over HTTP"`

	Config          string `arg:"-c,--config,env:FLOWBRIDGE_CONFIG" help:"settings file (yaml, json or toml)"`
	LogLevel        string `arg:"--log-level" help:"debug, info, warn or error"`
	LogFormat       string `arg:"--log-format" help:"text or json"`
	Workers         int    `arg:"--workers" help:"worker pool size; 1 runs nodes strictly one at a time"`
	HealthcheckPort int    `arg:"--healthcheck-port" help:"port for the /health and /metrics server; 0 disables it"`
}

// Description implements arg.Described.
func (Args) Description() string {
	return "flowbridge - run dataflow graphs of CSV, SQL, script, mapping and sub-flow nodes.\n"
}

// Command is the parsed invocation.
type Command struct {
	Name     string // "run" or "serve"
	Settings *config.Settings
	Run      *RunCmd
	Serve    *ServeCmd
}

// Parse processes command-line arguments. It returns the command to
// execute, a boolean indicating if the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*Command, bool, error) {
	slog.Debug("CLI parser started.")
	var a Args
	p, err := arg.NewParser(arg.Config{Program: "flowbridge"}, &a)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if err := p.Parse(args); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			_ = p.WriteHelpForSubcommand(output, p.SubcommandNames()...)
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	cmd := &Command{Run: a.Run, Serve: a.Serve}
	switch {
	case a.Run != nil:
		cmd.Name = "run"
	case a.Serve != nil:
		cmd.Name = "serve"
	default:
		slog.Debug("No command provided, printing usage and exiting.")
		p.WriteHelp(output)
		return nil, true, nil
	}
	if cmd.Run != nil && len(cmd.Run.Only) > 0 && cmd.Run.FromRun == "" {
		return nil, false, &ExitError{Code: 2, Message: "--only requires --from-run"}
	}

	settings, err := config.Load(a.Config)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if err := apply(settings, &a); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	cmd.Settings = settings

	slog.Debug("CLI parser finished successfully.", "command", cmd.Name)
	return cmd, false, nil
}

// apply lays explicitly set flags over the loaded settings and validates
// the result.
func apply(s *config.Settings, a *Args) error {
	if a.LogLevel != "" {
		s.Log.Level = strings.ToLower(a.LogLevel)
	}
	if a.LogFormat != "" {
		s.Log.Format = strings.ToLower(a.LogFormat)
	}
	if a.Workers != 0 {
		s.Executor.Workers = a.Workers
	}
	if a.HealthcheckPort != 0 {
		s.Server.HealthcheckPort = a.HealthcheckPort
	}
	if a.Serve != nil && a.Serve.Listen != "" {
		s.Server.Listen = a.Serve.Listen
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
