package httpserver_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wodworks/coachkit/pkg/httpserver"
)

// startServer runs srv on an ephemeral port and returns its base URL once
// the listener is up.
func startServer(t *testing.T, srv *httpserver.Server, handler http.Handler) (string, <-chan error, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, handler) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("listener did not come up")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return "http://" + srv.Addr(), errCh, cancel
}

func TestServer_ServesAndShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	base, errCh, cancel := startServer(t, srv, handler)

	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err, "cancellation is a clean shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_StartAndStopHooks(t *testing.T) {
	t.Parallel()

	var started, stopped atomic.Bool
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithStartHook(func(*slog.Logger) { started.Store(true) }),
		httpserver.WithStopHook(func(*slog.Logger) { stopped.Store(true) }),
	)
	_, errCh, cancel := startServer(t, srv, nil)

	assert.True(t, started.Load())
	assert.False(t, stopped.Load())

	cancel()
	require.NoError(t, <-errCh)
	assert.True(t, stopped.Load())
}

func TestServer_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"))
	_, errCh, cancel := startServer(t, srv, nil)
	defer cancel()

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-errCh)
}

func TestServer_RejectsSecondRun(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"))
	_, errCh, cancel := startServer(t, srv, nil)

	err := srv.Run(context.Background(), nil)
	assert.ErrorIs(t, err, httpserver.ErrStart)

	cancel()
	require.NoError(t, <-errCh)
}

func TestServer_BadAddr(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("256.0.0.1:99999"))
	err := srv.Run(context.Background(), nil)
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestNewFromConfig_ZeroValuesUseDefaults(t *testing.T) {
	t.Parallel()

	// A zero Config must not trip the option validation panics.
	srv := httpserver.NewFromConfig(httpserver.Config{})
	require.NotNil(t, srv)
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	probe := func(h http.HandlerFunc) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec
	}

	t.Run("no checks means alive", func(t *testing.T) {
		t.Parallel()
		rec := probe(httpserver.HealthCheckHandler(ctx, log))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("all checks pass", func(t *testing.T) {
		t.Parallel()
		ok := func(context.Context) error { return nil }
		rec := probe(httpserver.HealthCheckHandler(ctx, log, ok, ok))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("failing check reports not ready", func(t *testing.T) {
		t.Parallel()
		ok := func(context.Context) error { return nil }
		bad := func(context.Context) error { return context.DeadlineExceeded }
		rec := probe(httpserver.HealthCheckHandler(ctx, log, ok, bad))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "NOT_READY", rec.Body.String())
	})
}
