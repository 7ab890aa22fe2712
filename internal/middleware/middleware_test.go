package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 2, time.Minute)

	srv := httptest.NewServer(rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	defer srv.Close()

	client := srv.Client()
	req := func() *http.Response {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		return resp
	}

	// Burst of 2 should succeed back-to-back.
	r1 := req()
	require.Equal(t, http.StatusOK, r1.StatusCode)
	r2 := req()
	require.Equal(t, http.StatusOK, r2.StatusCode)

	// The third immediate request exceeds the burst and rate.
	r3 := req()
	require.Equal(t, http.StatusTooManyRequests, r3.StatusCode)
}

func TestRateLimiterJanitorEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, time.Millisecond)
	rl.allow("1.2.3.4")
	require.Len(t, rl.visitors, 1)

	stop := rl.StartJanitor(time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return len(rl.visitors) == 0
	}, time.Second, time.Millisecond)
}

func TestMaxBytesRejectsOversizedBody(t *testing.T) {
	handler := MaxBytes(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := http.MaxBytesReader(w, r.Body, 4).Read(make([]byte, 16))
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL, "text/plain", strings.NewReader("way too many bytes"))
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}
