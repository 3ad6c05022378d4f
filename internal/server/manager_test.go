package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/localpilot/config"
)

func newManager(t *testing.T, h http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	if h == nil {
		h = http.NotFoundHandler()
	}
	m := NewManager("api", h, cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestFromServerConfig(t *testing.T) {
	sc := config.DefaultServerConfig()
	sc.ReadTimeout = 5 * time.Second
	sc.WriteTimeout = 0

	cfg := FromServerConfig(sc, 9091)
	assert.Equal(t, "127.0.0.1:9091", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, sc.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)

	sc.Host = ""
	assert.Equal(t, ":8080", FromServerConfig(sc, 8080).Addr)
}

func TestManager_Serves(t *testing.T) {
	m := newManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))
	require.NoError(t, m.Start())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr(), "Addr reports the bound port")

	resp, err := http.Get("http://" + m.Addr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	_, err = http.Get("http://" + m.Addr() + "/ping")
	assert.Error(t, err)
}

func TestManager_Lifecycle(t *testing.T) {
	m := newManager(t, nil)
	assert.True(t, m.IsRunning())
	require.NoError(t, m.Start())
	assert.EqualError(t, m.Start(), "server already started")

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()), "second shutdown is a no-op")
	assert.EqualError(t, m.Start(), "server is closed")
}

func TestManager_PortInUse(t *testing.T) {
	first := newManager(t, nil)
	require.NoError(t, first.Start())

	cfg := DefaultConfig()
	cfg.Addr = first.Addr()
	second := NewManager("metrics", http.NotFoundHandler(), cfg, nil)
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen "+first.Addr())
}

func TestManager_HooksRunInOrder(t *testing.T) {
	m := newManager(t, nil)
	require.NoError(t, m.Start())

	var order []string
	m.OnShutdown("automation", func(context.Context) error {
		order = append(order, "automation")
		return nil
	})
	m.OnShutdown("telemetry", func(ctx context.Context) error {
		order = append(order, "telemetry")
		_, ok := ctx.Deadline()
		assert.True(t, ok, "hooks get the shutdown deadline")
		return errors.New("flush failed")
	})
	m.OnShutdown("history", func(context.Context) error {
		order = append(order, "history")
		return nil
	})

	err := m.Shutdown(context.Background())
	assert.EqualError(t, err, "telemetry: flush failed")
	assert.Equal(t, []string{"automation", "telemetry", "history"}, order)
}

func TestManager_WaitForShutdown(t *testing.T) {
	m := newManager(t, nil)
	require.NoError(t, m.Start())
	hooked := make(chan struct{})
	m.OnShutdown("events", func(context.Context) error {
		close(hooked)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.WaitForShutdown(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
	assert.False(t, m.IsRunning())
	_, open := <-hooked
	assert.False(t, open)
}

func TestManager_WaitForShutdownReturnsServeError(t *testing.T) {
	m := newManager(t, nil)
	boom := errors.New("accept failed")
	m.errCh <- boom

	err := m.WaitForShutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.IsRunning())
}

func TestManager_ErrorsEmptyWhileHealthy(t *testing.T) {
	m := newManager(t, nil)
	require.NoError(t, m.Start())
	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}
