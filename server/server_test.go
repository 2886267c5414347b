package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("stdlib is registered by default", func(t *testing.T) {
		assert.Contains(t, List(), "stdlib")
	})

	t.Run("New returns stdlib adapter", func(t *testing.T) {
		adapter, err := New("stdlib", Config{})
		require.NoError(t, err)
		assert.NotNil(t, adapter)
	})

	t.Run("New returns error for unknown adapter", func(t *testing.T) {
		_, err := New("unknown", Config{})
		assert.Error(t, err)
	})

	t.Run("Register and New custom adapter", func(t *testing.T) {
		Register("test-adapter", func(cfg Config) (ServerAdapter, error) {
			return NewStdlibAdapter(cfg), nil
		})
		adapter, err := New("test-adapter", Config{})
		require.NoError(t, err)
		assert.NotNil(t, adapter)
	})

	t.Run("List returns sorted names", func(t *testing.T) {
		names := List()
		for i := 1; i < len(names); i++ {
			assert.LessOrEqual(t, names[i-1], names[i])
		}
	})
}

func TestStdlibAdapter_RegisterHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		adapter := NewStdlibAdapter(Config{})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		assert.NoError(t, adapter.RegisterHandler("/health", handler))
	})

	t.Run("nil handler returns error", func(t *testing.T) {
		adapter := NewStdlibAdapter(Config{})
		assert.Error(t, adapter.RegisterHandler("/health", nil))
	})
}

func TestStdlibAdapter_Hooks(t *testing.T) {
	t.Run("BeforeRequest error short-circuits with OnError replacement", func(t *testing.T) {
		adapter := NewStdlibAdapter(Config{Hooks: Hooks{
			BeforeRequest: func(context.Context, *http.Request) error {
				return assert.AnError
			},
		}})
		handlerCalled := false
		require.NoError(t, adapter.RegisterHandler("/blocked", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})))

		req := httptest.NewRequest(http.MethodGet, "/blocked", nil)
		rec := httptest.NewRecorder()
		adapter.mux.ServeHTTP(rec, req)

		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("AfterRequest observes the status the handler wrote", func(t *testing.T) {
		var observed int
		adapter := NewStdlibAdapter(Config{Hooks: Hooks{
			AfterRequest: func(_ context.Context, _ *http.Request, status int) {
				observed = status
			},
		}})
		require.NoError(t, adapter.RegisterHandler("/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})))

		req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
		rec := httptest.NewRecorder()
		adapter.mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, observed)
	})
}

func TestStdlibAdapter_Shutdown_NoServer(t *testing.T) {
	adapter := NewStdlibAdapter(Config{})
	assert.NoError(t, adapter.Shutdown(context.Background()))
}

func TestStdlibAdapter_ServeAndShutdown(t *testing.T) {
	adapter := NewStdlibAdapter(Config{})
	require.NoError(t, adapter.RegisterHandler("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})))

	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- adapter.Serve(ctx, addr) }()
	time.Sleep(100 * time.Millisecond)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestStdlibAdapter_Serve_ListenError(t *testing.T) {
	adapter := NewStdlibAdapter(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := adapter.Serve(ctx, "invalid-address")
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestStdlibAdapter_Shutdown_WithRunningServer(t *testing.T) {
	adapter := NewStdlibAdapter(Config{})
	addr := freeAddr(t)

	ctx := context.Background()
	go adapter.Serve(ctx, addr)
	time.Sleep(50 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, adapter.Shutdown(shutdownCtx))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()
	return addr
}
