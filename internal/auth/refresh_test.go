package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refreshServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshSuccess(t *testing.T) {
	srv := refreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r1", body["refresh"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access":"a2","refresh":"r2"}`))
	})

	client := NewRefreshClient(RefreshOptions{Endpoint: srv.URL})
	token, err := client.Refresh(context.Background(), "r1")

	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "a2", token.AccessToken)
	assert.Equal(t, "r2", token.RefreshToken)
}

func TestRefreshWithoutRotation(t *testing.T) {
	srv := refreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access":"a2"}`))
	})

	client := NewRefreshClient(RefreshOptions{Endpoint: srv.URL})
	token, err := client.Refresh(context.Background(), "r1")

	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Empty(t, token.RefreshToken)

	pair := NextPair(token, "r1")
	assert.Equal(t, "a2", pair.Access)
	assert.Equal(t, "r1", pair.Refresh)
}

func TestRefreshExpectedFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rejected", http.StatusUnauthorized, `{"detail":"Token is invalid or expired"}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"not json", http.StatusOK, `<html>`},
		{"missing access", http.StatusOK, `{"refresh":"r2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := refreshServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			client := NewRefreshClient(RefreshOptions{Endpoint: srv.URL})
			token, err := client.Refresh(context.Background(), "r1")

			assert.NoError(t, err)
			assert.Nil(t, token)
		})
	}
}

func TestRefreshEmptyTokenSkipsBackend(t *testing.T) {
	var calls atomic.Int32
	srv := refreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	client := NewRefreshClient(RefreshOptions{Endpoint: srv.URL})
	token, err := client.Refresh(context.Background(), "")

	assert.NoError(t, err)
	assert.Nil(t, token)
	assert.Zero(t, calls.Load())
}

func TestRefreshTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewRefreshClient(RefreshOptions{Endpoint: url})
	token, err := client.Refresh(context.Background(), "r1")

	assert.Error(t, err)
	assert.Nil(t, token)
}

func TestRefreshCoalescesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	srv := refreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		once.Do(func() { close(entered) })
		<-release
		_, _ = w.Write([]byte(`{"access":"a2","refresh":"r2"}`))
	})

	client := NewRefreshClient(RefreshOptions{Endpoint: srv.URL, Coalesce: true})

	const n = 5
	results := make(chan string, n)
	var wg sync.WaitGroup
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := client.Refresh(context.Background(), "r1")
			if err == nil && token != nil {
				results <- token.AccessToken
			} else {
				results <- ""
			}
		}()
	}

	start()
	<-entered
	for i := 1; i < n; i++ {
		start()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for access := range results {
		assert.Equal(t, "a2", access)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefreshCoalescedCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := refreshServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"access":"a2"}`))
	})
	defer close(release)

	client := NewRefreshClient(RefreshOptions{Endpoint: srv.URL, Coalesce: true})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	token, err := client.Refresh(ctx, "r1")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, token)
}
