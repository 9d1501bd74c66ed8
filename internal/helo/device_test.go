package helo

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeviceClientFor(srv *httptest.Server) *DeviceClient {
	c := NewDeviceClient(DeviceOptions{RetryBase: time.Millisecond})
	c.base = srv.URL
	return c
}

func TestDeviceClient_StartRecord_Success(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newDeviceClientFor(srv)
	require.NoError(t, c.StartRecord(t.Context()))
	assert.Equal(t, "/control/record/start", path)
}

func TestDeviceClient_RetriesOn5xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewDeviceClient(DeviceOptions{RetryBase: time.Millisecond, MaxRetries: 3})
	c.base = srv.URL
	require.NoError(t, c.StopStream(t.Context()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestDeviceClient_4xxNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewDeviceClient(DeviceOptions{RetryBase: time.Millisecond, MaxRetries: 3})
	c.base = srv.URL
	err := c.StartStream(t.Context())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestDeviceClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"recording":true,"streaming":false,"state":"active"}`))
	}))
	defer srv.Close()

	c := newDeviceClientFor(srv)
	st, err := c.Status(t.Context())
	require.NoError(t, err)
	assert.True(t, st.Recording)
	assert.Equal(t, "active", st.State)
}
