// Package fetcher implements the prediction workflow: cache lookup, model
// call, response parsing, and cache write-back.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emezpr/Sureodds/internal/cache"
	"github.com/emezpr/Sureodds/internal/gemini"
	"github.com/emezpr/Sureodds/internal/logger"
	"github.com/emezpr/Sureodds/internal/metrics"
	"github.com/emezpr/Sureodds/internal/models"
)

// CacheKey is the single key all prediction entries live under.
// The fetcher is the only writer.
const CacheKey = "football:predictions:v1"

// Generator is the slice of the Gemini client the fetcher needs.
type Generator interface {
	Generate(ctx context.Context, systemInstruction, prompt string) (*gemini.GenerateResponse, error)
}

// Options tunes a Fetcher. Now is overridable for tests.
type Options struct {
	APIKey          string
	FreshnessWindow time.Duration
	MaxExcludes     int
	Now             func() time.Time
}

// Fetcher runs the fetch workflow against a model client and a cache store.
// Concurrent calls collapse into one in-flight request; late callers join
// the pending result.
type Fetcher struct {
	gen   Generator
	store cache.Store
	opts  Options

	mu       sync.Mutex
	inflight *call
}

type call struct {
	done chan struct{}
	res  *models.FetchResult
	err  error
}

func New(gen Generator, store cache.Store, opts Options) *Fetcher {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 4 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{gen: gen, store: store, opts: opts}
}

// Fetch returns predictions, served from cache when a fresh entry exists.
// forceRefresh skips the cache read and always calls the model. exclude
// lists match names the model is asked to avoid repeating.
func (f *Fetcher) Fetch(ctx context.Context, forceRefresh bool, exclude []string) (*models.FetchResult, error) {
	if f.opts.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}

	f.mu.Lock()
	if c := f.inflight; c != nil {
		f.mu.Unlock()
		select {
		case <-c.done:
			return c.res, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	f.inflight = c
	f.mu.Unlock()

	res, err := f.fetch(ctx, forceRefresh, exclude)
	c.res, c.err = res, err
	close(c.done)

	f.mu.Lock()
	f.inflight = nil
	f.mu.Unlock()

	return res, err
}

func (f *Fetcher) fetch(ctx context.Context, forceRefresh bool, exclude []string) (*models.FetchResult, error) {
	now := f.opts.Now()

	if !forceRefresh {
		if res := f.fromCache(ctx, now); res != nil {
			metrics.FetchesTotal.WithLabelValues("cache_hit").Inc()
			return res, nil
		}
	}

	start := time.Now()
	res, err := f.fetchLive(ctx, now, exclude)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FetchesTotal.WithLabelValues("live").Inc()
	return res, nil
}

// fromCache returns a result when a fresh entry exists. Corrupt entries are
// deleted silently so the live path can repopulate them; other read errors
// also fall through to a live fetch.
func (f *Fetcher) fromCache(ctx context.Context, now time.Time) *models.FetchResult {
	entry, err := f.store.Get(ctx, CacheKey)
	if err != nil {
		if errors.Is(err, cache.ErrCorruptEntry) {
			metrics.CacheCorruptionsTotal.Inc()
			logger.Warn("Deleting corrupt cache entry: %v", err)
			if delErr := f.store.Delete(ctx, CacheKey); delErr != nil {
				logger.Warn("Failed to delete corrupt cache entry: %v", delErr)
			}
		} else {
			logger.Warn("Cache read failed: %v", err)
		}
		return nil
	}
	if entry == nil || !entry.IsFresh(now, f.opts.FreshnessWindow) {
		return nil
	}
	return &models.FetchResult{
		Predictions: entry.Predictions,
		Sources:     entry.Sources,
		FromCache:   true,
		LastUpdated: time.UnixMilli(entry.Timestamp),
	}
}

func (f *Fetcher) fetchLive(ctx context.Context, now time.Time, exclude []string) (*models.FetchResult, error) {
	if f.opts.MaxExcludes > 0 && len(exclude) > f.opts.MaxExcludes {
		exclude = exclude[:f.opts.MaxExcludes]
	}

	fetchID := uuid.NewString()
	logger.Info("Fetching live predictions (fetch_id=%s, excludes=%d)", fetchID, len(exclude))

	resp, err := f.gen.Generate(ctx, systemInstruction, buildPrompt(now, exclude))
	if err != nil {
		if isRateLimited(err) {
			metrics.RateLimitedTotal.Inc()
			return nil, &RateLimitError{Err: err}
		}
		return nil, err
	}

	predictions, err := parsePredictions(resp.Text())
	if err != nil {
		return nil, err
	}
	sources := dedupeSources(resp.GroundingSources())

	entry := &models.CacheEntry{
		Predictions: predictions,
		Sources:     sources,
		Timestamp:   now.UnixMilli(),
	}
	if err := f.store.Put(ctx, CacheKey, entry); err != nil {
		logger.Warn("Failed to write cache entry: %v", err)
	}

	logger.Info("Fetched %d predictions with %d sources (fetch_id=%s)",
		len(predictions), len(sources), fetchID)

	return &models.FetchResult{
		Predictions: predictions,
		Sources:     sources,
		FromCache:   false,
		LastUpdated: now,
		FetchID:     fetchID,
	}, nil
}

// parsePredictions turns raw model text into at most MaxPredictions
// validated entries. Oversized arrays are truncated, never padded.
func parsePredictions(text string) ([]models.Prediction, error) {
	span, ok := extractJSONArray(text)
	if !ok {
		return nil, &MalformedResponseError{Reason: "no JSON array in model reply"}
	}
	var predictions []models.Prediction
	if err := json.Unmarshal([]byte(span), &predictions); err != nil {
		return nil, &MalformedResponseError{Reason: "JSON array does not parse", Err: err}
	}
	if len(predictions) == 0 {
		return nil, ErrNoPicks
	}
	if len(predictions) > models.MaxPredictions {
		predictions = predictions[:models.MaxPredictions]
	}
	for i := range predictions {
		if err := predictions[i].Validate(); err != nil {
			return nil, &MalformedResponseError{
				Reason: fmt.Sprintf("prediction %d failed validation", i+1),
				Err:    err,
			}
		}
	}
	return predictions, nil
}

// dedupeSources keeps the first occurrence of each URI, preserving order.
func dedupeSources(sources []models.GroundingSource) []models.GroundingSource {
	if len(sources) == 0 {
		return sources
	}
	seen := make(map[string]struct{}, len(sources))
	out := make([]models.GroundingSource, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		out = append(out, s)
	}
	return out
}

// isRateLimited recognizes quota errors either as a typed 429 reply or by
// the status code leaking into the error text.
func isRateLimited(err error) bool {
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(err.Error(), "429")
}
