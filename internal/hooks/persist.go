package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/resultstore"
)

// Persist saves results to a result store. In trace mode every node is
// saved as soon as it finishes; otherwise the whole run is saved once it
// ends.
type Persist struct {
	Store resultstore.Store

	mu    sync.Mutex
	saved map[string]map[string]struct{} // runID -> node ids already saved
}

// NewPersist creates a persistence hook writing to store.
func NewPersist(store resultstore.Store) *Persist {
	return &Persist{Store: store, saved: make(map[string]map[string]struct{})}
}

func (p *Persist) save(ctx context.Context, env *result.Envelope) error {
	rec, err := resultstore.NewRecord(env)
	if err != nil {
		return err
	}
	if err := p.Store.Save(ctx, rec); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.saved[rec.RunID]
	if !ok {
		run = make(map[string]struct{})
		p.saved[rec.RunID] = run
	}
	run[rec.NodeID] = struct{}{}
	return nil
}

func (p *Persist) onNode(ctx context.Context, ev executor.Event) error {
	if !ev.TraceMode {
		return nil
	}
	return p.save(ctx, ev.Result)
}

// OnComplete implements executor.Hook.
func (p *Persist) OnComplete(ctx context.Context, ev executor.Event) error { return p.onNode(ctx, ev) }

// OnFailure implements executor.Hook.
func (p *Persist) OnFailure(ctx context.Context, ev executor.Event) error { return p.onNode(ctx, ev) }

// OnRunFinished saves every result not already saved during the run.
func (p *Persist) OnRunFinished(ctx context.Context, report *executor.Report) error {
	p.mu.Lock()
	done := p.saved[report.RunID]
	delete(p.saved, report.RunID)
	p.mu.Unlock()

	var errs []error
	for _, id := range report.Order {
		if _, ok := done[id]; ok {
			continue
		}
		env := report.Results[id]
		if env == nil {
			continue
		}
		if err := p.save(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", id, err))
		}
	}
	p.mu.Lock()
	delete(p.saved, report.RunID)
	p.mu.Unlock()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	ctxlog.FromContext(ctx).Debug("Run results persisted.", "nodes", len(report.Order)-len(done))
	return nil
}
