package hooks_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/hooks"
	"github.com/specialistvlad/flowbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sio "github.com/zishang520/socket.io/v2/socket"
)

// dashboardServer starts a socket.io server that forwards every received
// event to the returned channel.
func dashboardServer(t *testing.T) (string, <-chan []any) {
	t.Helper()
	received := make(chan []any, 16)
	io := sio.NewServer(nil, nil)
	require.NoError(t, io.On("connection", func(clients ...any) {
		client := clients[0].(*sio.Socket)
		for _, ev := range []string{hooks.EventNodeFinished, hooks.EventRunFinished} {
			ev := ev
			_ = client.On(ev, func(args ...any) {
				received <- append([]any{ev}, args...)
			})
		}
	}))

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", io.ServeHandler(nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		io.Close(nil)
		srv.Close()
	})
	return srv.URL, received
}

func nextEvent(t *testing.T, ch <-chan []any) (string, map[string]any) {
	t.Helper()
	select {
	case args := <-ch:
		require.Len(t, args, 2)
		payload, ok := args[1].(map[string]any)
		require.True(t, ok, "payload is %T", args[1])
		return args[0].(string), payload
	case <-time.After(5 * time.Second):
		t.Fatal("no dashboard event received")
	}
	return "", nil
}

func TestDialSocketIO_DeliversRunEvents(t *testing.T) {
	ctx, logs := testutil.LogContext(t)
	url, received := dashboardServer(t)

	emitter, err := hooks.DialSocketIO(ctx, hooks.SocketIOOptions{URL: url, Namespace: "/", ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer emitter.Close()
	assert.Contains(t, logs.String(), "Dashboard connected")

	report := run(t, nil, hooks.NewDashboard(emitter))

	seen := map[string]map[string]any{}
	var runEvent map[string]any
	for i := 0; i < 3; i++ {
		ev, payload := nextEvent(t, received)
		switch ev {
		case hooks.EventNodeFinished:
			seen[payload["node_id"].(string)] = payload
		case hooks.EventRunFinished:
			runEvent = payload
		}
	}
	require.Contains(t, seen, "good")
	require.Contains(t, seen, "bad")
	assert.Equal(t, report.RunID, seen["good"]["run_id"])
	assert.Equal(t, true, seen["bad"]["result"].(map[string]any)["error"])

	require.NotNil(t, runEvent)
	assert.Equal(t, report.RunID, runEvent["run_id"])
	assert.Equal(t, string(executor.PartiallyFailed), runEvent["status"])
	assert.Equal(t, []any{"bad"}, runEvent["failed"])
}

func TestDialSocketIO_Unreachable(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = hooks.DialSocketIO(ctx, hooks.SocketIOOptions{URL: "http://" + addr, Namespace: "/", ConnectTimeout: 2 * time.Second})
	assert.Error(t, err)
}

func TestDialSocketIO_BadURL(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	_, err := hooks.DialSocketIO(ctx, hooks.SocketIOOptions{URL: "://nope"})
	assert.ErrorContains(t, err, "failed to parse dashboard URL")
}
