package codeforces

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*ClientConfig)) (*Client, *int32) {
	t.Helper()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	cfg.Timeout = 2 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}
	return NewClient(cfg, WithLimiter(rate.NewLimiter(rate.Inf, 0))), &hits
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestFetchProfile_OK(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user.info", r.URL.Path)
		assert.Equal(t, "tourist", r.URL.Query().Get("handles"))
		writeJSON(w, http.StatusOK, `{"status":"OK","result":[{"handle":"tourist","rating":3800,"maxRating":4009,"rank":"legendary grandmaster"}]}`)
	})

	p, err := client.FetchProfile(context.Background(), "tourist")
	require.NoError(t, err)
	assert.Equal(t, "tourist", p.Handle)
	assert.Equal(t, 3800, p.Rating)
	assert.Equal(t, 4009, p.MaxRating)
}

func TestFetchProfile_UnratedDefaultsToZero(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"OK","result":[{"handle":"newbie"}]}`)
	})

	p, err := client.FetchProfile(context.Background(), "newbie")
	require.NoError(t, err)
	cur, maxRating := NewMapper().Ratings(p)
	assert.Zero(t, cur)
	assert.Zero(t, maxRating)
}

func TestFetchSubmissions_Decodes(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user.status", r.URL.Path)
		assert.Equal(t, "tourist", r.URL.Query().Get("handle"))
		writeJSON(w, http.StatusOK, `{"status":"OK","result":[
			{"id":2,"contestId":1850,"creationTimeSeconds":1700000100,
			 "problem":{"contestId":1850,"index":"A","name":"To My Critics","rating":800,"tags":["implementation"]},
			 "verdict":"OK","programmingLanguage":"GNU C++20"},
			{"id":1,"creationTimeSeconds":1700000000,
			 "problem":{"index":"B","name":"Gym Problem","tags":[]},
			 "verdict":"WRONG_ANSWER","programmingLanguage":"Go"}
		]}`)
	})

	subs, err := client.FetchSubmissions(context.Background(), "tourist")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(2), subs[0].ID)
	assert.Equal(t, 800, subs[0].Problem.Rating)
	assert.Zero(t, subs[1].ContestID)
	assert.Zero(t, subs[1].Problem.Rating)
}

func TestFetchRatingHistory_Decodes(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user.rating", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"status":"OK","result":[
			{"contestId":1,"contestName":"Round 1","handle":"x","rank":10,"ratingUpdateTimeSeconds":1600000000,"oldRating":0,"newRating":1400}
		]}`)
	})

	history, err := client.FetchRatingHistory(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1400, history[0].NewRating)
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header map[string]string
		want   Kind
	}{
		{
			name:   "unknown handle",
			status: http.StatusBadRequest,
			body:   `{"status":"FAILED","comment":"handle: User with handle nobody_xyz not found"}`,
			want:   KindNotFound,
		},
		{
			name:   "http 429",
			status: http.StatusTooManyRequests,
			body:   ``,
			header: map[string]string{"Retry-After": "3"},
			want:   KindRateLimited,
		},
		{
			name:   "call limit comment",
			status: http.StatusServiceUnavailable,
			body:   `{"status":"FAILED","comment":"Call limit exceeded"}`,
			want:   KindRateLimited,
		},
		{
			name:   "other failure",
			status: http.StatusBadRequest,
			body:   `{"status":"FAILED","comment":"handle: Field should not be empty"}`,
			want:   KindUpstreamError,
		},
		{
			name:   "maintenance page",
			status: http.StatusServiceUnavailable,
			body:   `<html>Codeforces is temporarily unavailable</html>`,
			want:   KindUpstreamError,
		},
		{
			name:   "garbage with 200",
			status: http.StatusOK,
			body:   `not json`,
			want:   KindTransportFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.FetchSubmissions(context.Background(), "someone")
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestClient_RateLimitCarriesRetryAfter(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchRatingHistory(context.Background(), "x")
	var cfErr *Error
	require.True(t, errors.As(err, &cfErr))
	assert.Equal(t, 7*time.Second, cfErr.RetryAfter)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, shared.ErrRateLimited)
}

func TestClient_NotFoundMatchesSharedKind(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"status":"FAILED","comment":"handles: User with handle ghost not found"}`)
	})

	_, err := client.FetchProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	client := NewClient(cfg, WithLimiter(rate.NewLimiter(rate.Inf, 0)))

	_, err := client.FetchProfile(context.Background(), "tourist")
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestClient_DoesNotRetry(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"status":"FAILED","comment":"Internal error"}`)
	})

	_, err := client.FetchSubmissions(context.Background(), "tourist")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"status":"FAILED","comment":"Internal error"}`)
	}, func(cfg *ClientConfig) {
		cfg.Breaker.MinRequests = 2
		cfg.Breaker.FailureRatio = 0.5
		cfg.Breaker.Timeout = time.Hour
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.FetchSubmissions(ctx, "tourist")
		assert.Equal(t, KindUpstreamError, KindOf(err))
	}

	_, err := client.FetchSubmissions(ctx, "tourist")
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits), "open breaker must not reach upstream")
	assert.Equal(t, "open", client.breaker.State().String())
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"status":"FAILED","comment":"handle: User with handle a not found"}`)
	}, func(cfg *ClientConfig) {
		cfg.Breaker.MinRequests = 1
		cfg.Breaker.FailureRatio = 0.1
	})

	for i := 0; i < 3; i++ {
		_, err := client.FetchSubmissions(context.Background(), "a")
		assert.Equal(t, KindNotFound, KindOf(err))
	}
	assert.Equal(t, "closed", client.breaker.State().String())
}

func TestClient_CancelledContext(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"OK","result":[]}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchSubmissions(ctx, "tourist")
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.Zero(t, atomic.LoadInt32(hits))
}
