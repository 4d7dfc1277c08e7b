package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/shufflepool/pkg/readpool"
)

func newPoolWithMetrics(t *testing.T) (*readpool.Pool, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	pool, err := readpool.New(readpool.Options{
		TotalBytes:     32 << 20,
		BufferSize:     4 << 20,
		RequestTimeout: time.Second,
		Allocator:      readpool.NewHeapAllocator(0),
		Metrics:        readpool.NewMetrics(reg),
	})
	require.NoError(t, err)
	t.Cleanup(pool.Destroy)
	return pool, reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouterRoutes(t *testing.T) {
	pool, reg := newPoolWithMetrics(t)
	router := NewRouter(pool, reg)

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/pool", http.StatusOK},
		{"/pool/plan", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/", http.StatusTemporaryRedirect},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.status, get(t, router, tt.path).Code)
		})
	}
}

func TestRouterMetricsReflectPool(t *testing.T) {
	pool, reg := newPoolWithMetrics(t)
	router := NewRouter(pool, reg)

	segs, err := pool.RequestBuffers(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.RecycleAll(segs))

	body := get(t, router, "/metrics").Body.String()
	assert.Contains(t, body, `shufflepool_readpool_requests_total{status="granted"} 1`)
	assert.Contains(t, body, "shufflepool_readpool_available_buffers 8")
}

func TestRouterWithoutGatherer(t *testing.T) {
	router := NewRouter(nil, nil)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/metrics").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/health").Code)
}

func TestRouterReadinessAfterDestroy(t *testing.T) {
	pool, reg := newPoolWithMetrics(t)
	router := NewRouter(pool, reg)

	pool.Destroy()

	w := get(t, router, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
}

func TestServerServeAndShutdown(t *testing.T) {
	pool, reg := newPoolWithMetrics(t)
	srv := NewServer(ServerConfig{ShutdownTimeout: time.Second}, pool, reg)
	assert.Equal(t, 9090, srv.Port())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "shufflepool")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	// Second Stop is a no-op.
	assert.NoError(t, srv.Stop(context.Background()))
}
