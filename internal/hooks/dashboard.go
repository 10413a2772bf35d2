package hooks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/serialize"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Dashboard event names.
const (
	EventNodeFinished = "node_finished"
	EventRunFinished  = "run_finished"
)

// Emitter sends one named event to the dashboard.
type Emitter interface {
	Emit(event string, payload any) error
}

// Dashboard streams node results to a live UI.
type Dashboard struct {
	Emitter Emitter
}

// NewDashboard creates a dashboard hook.
func NewDashboard(e Emitter) *Dashboard {
	return &Dashboard{Emitter: e}
}

func (d *Dashboard) onNode(_ context.Context, ev executor.Event) error {
	return d.Emitter.Emit(EventNodeFinished, map[string]any{
		"run_id":  ev.RunID,
		"node_id": ev.NodeID,
		"result":  serialize.Envelope(ev.Result),
	})
}

// OnComplete implements executor.Hook.
func (d *Dashboard) OnComplete(ctx context.Context, ev executor.Event) error { return d.onNode(ctx, ev) }

// OnFailure implements executor.Hook.
func (d *Dashboard) OnFailure(ctx context.Context, ev executor.Event) error { return d.onNode(ctx, ev) }

// OnRunFinished implements executor.RunHook.
func (d *Dashboard) OnRunFinished(_ context.Context, report *executor.Report) error {
	return d.Emitter.Emit(EventRunFinished, map[string]any{
		"run_id": report.RunID,
		"status": string(report.Status),
		"failed": report.Failed(),
		"order":  report.Order,
	})
}

// SocketIOOptions selects the dashboard server.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// SocketIOEmitter is an Emitter backed by a socket.io client connection.
type SocketIOEmitter struct {
	io *socket.Socket
}

// DialSocketIO connects to the dashboard server and waits until the
// connection is established.
func DialSocketIO(ctx context.Context, opts SocketIOOptions) (*SocketIOEmitter, error) {
	logger := ctxlog.FromContext(ctx).With("component", "dashboard", "url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard URL: %w", err)
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	sockOpts := socket.DefaultOptions()
	if p := parsedURL.Path; p != "" && p != "/" {
		sockOpts.SetPath(p)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket(opts.Namespace, sockOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Dashboard connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	logger.Debug("Connecting to dashboard...")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIOEmitter{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Emit implements Emitter.
func (s *SocketIOEmitter) Emit(event string, payload any) error {
	if !s.io.Connected() {
		return fmt.Errorf("dashboard disconnected, dropping %s", event)
	}
	return s.io.Emit(event, payload)
}

// Close disconnects from the dashboard.
func (s *SocketIOEmitter) Close() error {
	s.io.Disconnect()
	return nil
}
