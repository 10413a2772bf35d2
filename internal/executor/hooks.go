package executor

import (
	"context"
	"fmt"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// Event describes one finished node.
type Event struct {
	RunID     string
	NodeID    string
	NodeType  string
	Node      node.Node // nil when the node could not be constructed
	Inputs    result.Inputs
	TestMode  bool
	TraceMode bool
	Result    *result.Envelope
}

// Hook receives lifecycle notifications. Exactly one of OnComplete or
// OnFailure is called per node, after the node's state transition and
// before any dependent starts. Returned errors and panics are logged and
// never change the node's result.
type Hook interface {
	OnComplete(ctx context.Context, ev Event) error
	OnFailure(ctx context.Context, ev Event) error
}

// RunHook is implemented by hooks that also want the finished report.
type RunHook interface {
	OnRunFinished(ctx context.Context, report *Report) error
}

// HookFuncs adapts plain functions to Hook. Nil fields are skipped.
type HookFuncs struct {
	Complete func(ctx context.Context, ev Event) error
	Failure  func(ctx context.Context, ev Event) error
}

// OnComplete implements Hook.
func (h HookFuncs) OnComplete(ctx context.Context, ev Event) error {
	if h.Complete == nil {
		return nil
	}
	return h.Complete(ctx, ev)
}

// OnFailure implements Hook.
func (h HookFuncs) OnFailure(ctx context.Context, ev Event) error {
	if h.Failure == nil {
		return nil
	}
	return h.Failure(ctx, ev)
}

// HookError wraps a failure raised by a hook.
type HookError struct {
	Hook   string
	NodeID string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s failed for node %q: %v", e.Hook, e.NodeID, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

func (e *Executor) fire(ctx context.Context, ev Event) {
	for _, h := range e.hooks {
		if err := callHook(ctx, h, ev); err != nil {
			ctxlog.FromContext(ctx).Warn("Lifecycle hook failed.", "error", err)
		}
	}
}

func callHook(ctx context.Context, h Hook, ev Event) (err error) {
	name := fmt.Sprintf("%T", h)
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Hook: name, NodeID: ev.NodeID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if ev.Result.Error {
		err = h.OnFailure(ctx, ev)
	} else {
		err = h.OnComplete(ctx, ev)
	}
	if err != nil {
		return &HookError{Hook: name, NodeID: ev.NodeID, Err: err}
	}
	return nil
}

func (e *Executor) fireRunFinished(ctx context.Context, report *Report) {
	for _, h := range e.hooks {
		rh, ok := h.(RunHook)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					ctxlog.FromContext(ctx).Warn("Run hook panicked.", "hook", fmt.Sprintf("%T", h), "panic", r)
				}
			}()
			if err := rh.OnRunFinished(ctx, report); err != nil {
				ctxlog.FromContext(ctx).Warn("Run hook failed.", "hook", fmt.Sprintf("%T", h), "error", err)
			}
		}()
	}
}
