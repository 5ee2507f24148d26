package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/emezpr/Sureodds/internal/fetcher"
	"github.com/emezpr/Sureodds/internal/gemini"
	"github.com/emezpr/Sureodds/internal/models"
	"github.com/emezpr/Sureodds/internal/ws"
)

type fakeFetcher struct {
	res     *models.FetchResult
	err     error
	calls   int
	force   bool
	exclude []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, force bool, exclude []string) (*models.FetchResult, error) {
	f.calls++
	f.force = force
	f.exclude = exclude
	return f.res, f.err
}

type fakeNotifier struct {
	calls int
	last  *models.FetchResult
}

func (n *fakeNotifier) SendPredictions(res *models.FetchResult) error {
	n.calls++
	n.last = res
	return nil
}

type fakePublisher struct {
	calls int
}

func (p *fakePublisher) PublishUpdated(ctx context.Context, res *models.FetchResult) error {
	p.calls++
	return nil
}

type stubStore struct {
	pingErr error
}

func (s *stubStore) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	return nil, nil
}
func (s *stubStore) Put(ctx context.Context, key string, e *models.CacheEntry) error { return nil }
func (s *stubStore) Delete(ctx context.Context, key string) error                    { return nil }
func (s *stubStore) Ping(ctx context.Context) error                                  { return s.pingErr }
func (s *stubStore) Close() error                                                    { return nil }

func sampleResult(fromCache bool) *models.FetchResult {
	return &models.FetchResult{
		Predictions: []models.Prediction{{
			Match:             "Arsenal vs Fulham",
			League:            "Premier League",
			BetRecommendation: "Arsenal or Draw",
			Confidence:        90,
			MarketOption:      "Double Chance",
		}},
		Sources:     []models.GroundingSource{{Title: "Preview", URI: "https://example.com/p"}},
		FromCache:   fromCache,
		LastUpdated: time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC),
	}
}

func newTestServer(f *fakeFetcher, store *stubStore) (*Server, *fakeNotifier, *fakePublisher) {
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	hub := ws.NewHub(func(r *http.Request) bool { return true })
	srv := New(Config{CORSOrigins: []string{"*"}}, f, store, hub, notifier, publisher)
	return srv, notifier, publisher
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestGetPredictionsLiveResult(t *testing.T) {
	f := &fakeFetcher{res: sampleResult(false)}
	srv, notifier, publisher := newTestServer(f, &stubStore{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/predictions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if f.force {
		t.Error("GET predictions forced a refresh")
	}

	var res models.FetchResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(res.Predictions) != 1 || res.Predictions[0].Match != "Arsenal vs Fulham" {
		t.Errorf("Predictions = %+v", res.Predictions)
	}
	if res.FromCache {
		t.Error("fromCache = true, want false")
	}

	if notifier.calls != 1 {
		t.Errorf("notifier calls = %d, want 1 for a fresh result", notifier.calls)
	}
	if publisher.calls != 1 {
		t.Errorf("publisher calls = %d, want 1 for a fresh result", publisher.calls)
	}
}

func TestGetPredictionsCachedSkipsSideEffects(t *testing.T) {
	f := &fakeFetcher{res: sampleResult(true)}
	srv, notifier, publisher := newTestServer(f, &stubStore{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/predictions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if notifier.calls != 0 || publisher.calls != 0 {
		t.Errorf("cache hit triggered side effects: notifier=%d publisher=%d",
			notifier.calls, publisher.calls)
	}
}

func TestRefreshForwardsExclusions(t *testing.T) {
	f := &fakeFetcher{res: sampleResult(false)}
	srv, _, _ := newTestServer(f, &stubStore{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/predictions/refresh",
		`{"excludeMatches":["Team X vs Team Y","A vs B"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if !f.force {
		t.Error("refresh did not force a live fetch")
	}
	if len(f.exclude) != 2 || f.exclude[0] != "Team X vs Team Y" {
		t.Errorf("exclusions = %v", f.exclude)
	}
}

func TestRefreshEmptyBody(t *testing.T) {
	f := &fakeFetcher{res: sampleResult(false)}
	srv, _, _ := newTestServer(f, &stubStore{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/predictions/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for an empty body", rec.Code)
	}
	if !f.force || f.exclude != nil {
		t.Errorf("empty body: force=%v exclude=%v", f.force, f.exclude)
	}
}

func TestRefreshRejectsBadBody(t *testing.T) {
	f := &fakeFetcher{res: sampleResult(false)}
	srv, _, _ := newTestServer(f, &stubStore{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/predictions/refresh", `{"excludeMatches":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.calls != 0 {
		t.Errorf("fetcher called %d times on a bad body, want 0", f.calls)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing api key", fetcher.ErrAPIKeyMissing, http.StatusInternalServerError},
		{"rate limited", &fetcher.RateLimitError{Err: errors.New("429")}, http.StatusTooManyRequests},
		{"malformed reply", &fetcher.MalformedResponseError{Reason: "no JSON array"}, http.StatusBadGateway},
		{"no picks", fetcher.ErrNoPicks, http.StatusBadGateway},
		{"upstream 5xx", fmt.Errorf("max retries exceeded: %w", &gemini.APIError{StatusCode: 503, Message: "unavailable"}), http.StatusBadGateway},
		{"transport", fmt.Errorf("max retries exceeded: %w", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{err: tt.err}
			srv, _, _ := newTestServer(f, &stubStore{})

			rec := doRequest(t, srv, http.MethodGet, "/api/v1/predictions", "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Error("error body is empty")
			}
		})
	}
}

func TestStateReflectsFetchOutcomes(t *testing.T) {
	f := &fakeFetcher{res: sampleResult(false)}
	srv, _, _ := newTestServer(f, &stubStore{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var initial models.AppState
	if err := json.NewDecoder(rec.Body).Decode(&initial); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if initial.Loading || len(initial.Predictions) != 0 || initial.Error != "" {
		t.Errorf("initial state = %+v, want empty", initial)
	}

	doRequest(t, srv, http.MethodGet, "/api/v1/predictions", "")

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/state", "")
	var after models.AppState
	if err := json.NewDecoder(rec.Body).Decode(&after); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if len(after.Predictions) != 1 || after.Loading || after.Error != "" {
		t.Errorf("state after success = %+v", after)
	}

	f.res = nil
	f.err = &fetcher.RateLimitError{Err: errors.New("429")}
	doRequest(t, srv, http.MethodGet, "/api/v1/predictions", "")

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/state", "")
	var failed models.AppState
	if err := json.NewDecoder(rec.Body).Decode(&failed); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if failed.Error == "" {
		t.Error("state after failure carries no error")
	}
	if len(failed.Predictions) != 0 {
		t.Errorf("state after failure still shows predictions: %+v", failed.Predictions)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(&fakeFetcher{}, &stubStore{})
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	srv, _, _ = newTestServer(&fakeFetcher{}, &stubStore{pingErr: errors.New("down")})
	rec = doRequest(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when the cache is down", rec.Code)
	}
}
