package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "confsync/1.0", r.UserAgent())
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(nil, time.Second)
	body, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGetNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(nil, time.Second).Get(context.Background(), srv.URL)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestGetTimeoutIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(nil, 20*time.Millisecond).Get(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/tagged" {
			w.Header().Set("ETag", `"v42"`)
		}
	}))
	defer srv.Close()

	f := New(nil, time.Second)
	etag, err := f.Head(context.Background(), srv.URL+"/tagged")
	require.NoError(t, err)
	assert.Equal(t, `"v42"`, etag)

	etag, err = f.Head(context.Background(), srv.URL+"/plain")
	require.NoError(t, err)
	assert.Empty(t, etag)
}

func TestHeadNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(nil, time.Second).Head(context.Background(), srv.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.MethodHead, statusErr.Method)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestHostLimiterCancel(t *testing.T) {
	hl := newHostLimiter()
	ctx := context.Background()
	for i := 0; i < MaxConcurrencyPerHost; i++ {
		require.NoError(t, hl.acquire(ctx, "h"))
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, hl.acquire(cancelled, "h"), context.Canceled)
}
