package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetShows_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shows", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]Show{{ID: "1", Title: "Council"}})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, MaxRetries: 0})
	shows, err := c.GetShows(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, "Council", shows[0].Title)
}

func TestClient_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(Show{ID: "1"})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, MaxRetries: 3, RetryBase: time.Millisecond})
	_, err := c.GetShow(t.Context(), "1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_4xxSurfacesImmediatelyWithoutRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, MaxRetries: 3, RetryBase: time.Millisecond})
	_, err := c.GetShow(t.Context(), "missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "4xx responses must not be retried")
}

func TestClient_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	require.NoError(t, c.TestConnection(t.Context()))
}

func TestClient_WaitForVODProcessing_ReachesReady(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		state := VODProcessing
		if n >= 2 {
			state = VODReady
		}
		_ = json.NewEncoder(w).Encode(VOD{ID: "1", State: state, Percent: int(n) * 50})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	v, err := c.WaitForVODProcessing(t.Context(), "1", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, VODReady, v.State)
}
