package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/flowbridge/internal/api"
	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/flowfile"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// RunOptions selects what RunFlow executes.
type RunOptions struct {
	GraphPath string
	// TestMode and TraceMode are OR-ed with the flow file's executor options.
	TestMode  bool
	TraceMode bool
	// Only restricts the run to these nodes. Their upstream results are
	// read from the stored results of FromRun.
	Only    []string
	FromRun string
}

// ErrNoStore is returned when an operation needs stored results but
// storage is disabled.
var ErrNoStore = errors.New("result storage is disabled")

// RunFlow loads the flow file and executes it to completion. A run whose
// nodes fail still returns a report and no error; only load and graph
// construction failures are errors.
func (a *App) RunFlow(ctx context.Context, ro RunOptions) (*executor.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.RunFlow method started.", "graph", ro.GraphPath)

	if err := a.startHealthCheckServer(); err != nil {
		return nil, err
	}

	doc, err := flowfile.Load(ctx, ro.GraphPath)
	if err != nil {
		return nil, err
	}
	g, err := doc.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	opts := a.runOptions(doc.Options(), ro)
	a.logger.Debug("Dependency graph built.", "node_count", g.Len(), "edges", len(g.Edges()))

	if len(ro.Only) == 0 {
		return a.executor.Run(ctx, g, opts)
	}

	for _, id := range ro.Only {
		if !g.Has(id) {
			return nil, fmt.Errorf("cannot re-run %q: no such node in %s", id, ro.GraphPath)
		}
	}
	previous, err := a.storedResults(ctx, ro.FromRun)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Re-running selected nodes.", "only", ro.Only, "fromRun", ro.FromRun, "stored", len(previous))
	return a.executor.Rerun(ctx, g, ro.Only, previous, opts)
}

// runOptions merges command-line switches and settings into the options
// declared by the flow file.
func (a *App) runOptions(opts *node.Options, ro RunOptions) *node.Options {
	opts.TestMode = opts.TestMode || ro.TestMode
	opts.TraceMode = opts.TraceMode || ro.TraceMode
	if addr := a.settings.Executor.Address; opts.ExecutorAddress == nil && addr.Host != "" {
		opts.ExecutorAddress = &node.Address{Host: addr.Host, Port: addr.Port, SSL: addr.SSL}
	}
	return opts
}

// storedResults reads back every result of a previous run.
func (a *App) storedResults(ctx context.Context, runID string) (map[string]*result.Envelope, error) {
	if a.store == nil {
		return nil, fmt.Errorf("re-running from %s: %w", runID, ErrNoStore)
	}
	recs, err := a.store.List(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("reading results of run %s: %w", runID, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no stored results for run %s", runID)
	}
	out := make(map[string]*result.Envelope, len(recs))
	for _, rec := range recs {
		env, err := rec.Envelope()
		if err != nil {
			return nil, err
		}
		out[rec.NodeID] = env
	}
	return out, nil
}

// Serve runs the remote executor API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Debug("App.Serve method started.", "listen", a.settings.Server.Listen)
	if err := a.startHealthCheckServer(); err != nil {
		return err
	}

	srv := api.New(a.ctx, a.executor, a.store)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(a.settings.Server.Listen) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("🌐 Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return <-errCh
}
