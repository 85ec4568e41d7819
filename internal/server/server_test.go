package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.Handler) *Server {
	t.Helper()
	return New(h, Config{
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: 2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func start(t *testing.T, s *Server) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return cancel, done
}

func TestServer_ServesAndReleasesBackendsInReverseOrder(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var (
		mu       sync.Mutex
		released []string
	)
	release := func(name string) ReleaseFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			released = append(released, name)
			return nil
		}
	}
	s.OnShutdown("store", release("store"))
	s.OnShutdown("redis", release("redis"))

	cancel, done := start(t, s)

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, s.Draining())

	cancel()
	require.NoError(t, <-done)

	assert.True(t, s.Draining())
	assert.Equal(t, []string{"redis", "store"}, released)
}

func TestServer_ReleaseErrorsAreJoined(t *testing.T) {
	s := newTestServer(t, http.NotFoundHandler())

	storeErr := errors.New("pool close failed")
	redisErr := errors.New("redis close failed")
	s.OnShutdown("store", func(context.Context) error { return storeErr })
	s.OnShutdown("redis", func(context.Context) error { return redisErr })

	cancel, done := start(t, s)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.ErrorIs(t, err, redisErr)
	assert.Contains(t, err.Error(), "release store")
}

func TestServer_DrainsInFlightRequestBeforeRelease(t *testing.T) {
	entered := make(chan struct{})
	finish := make(chan struct{})
	var handled atomic.Bool
	s := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-finish
		w.WriteHeader(http.StatusOK)
		handled.Store(true)
	}))

	var handledAtRelease atomic.Bool
	s.OnShutdown("store", func(context.Context) error {
		handledAtRelease.Store(handled.Load())
		return nil
	})

	cancel, done := start(t, s)

	go func() {
		resp, err := http.Get("http://" + s.Addr() + "/")
		if err == nil {
			resp.Body.Close()
		}
	}()

	<-entered
	cancel()
	require.Eventually(t, s.Draining, time.Second, 10*time.Millisecond)
	close(finish)

	require.NoError(t, <-done)
	assert.True(t, handledAtRelease.Load(), "store released before the in-flight request finished")
}

func TestServer_ListenError(t *testing.T) {
	s := newTestServer(t, http.NotFoundHandler())
	s.httpServer.Addr = "127.0.0.1:-1"

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
