package server

import (
	"sync"

	"github.com/emezpr/Sureodds/internal/models"
)

// stateHolder guards the single AppState snapshot served over HTTP and
// WebSocket. Only fetch transitions mutate it; each mutation returns the
// new snapshot so callers can broadcast it.
type stateHolder struct {
	mu sync.RWMutex
	s  models.AppState
}

func (h *stateHolder) setLoading() models.AppState {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Loading = true
	h.s.Error = ""
	return h.s
}

func (h *stateHolder) applyResult(res *models.FetchResult) models.AppState {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s = models.AppState{
		Predictions: res.Predictions,
		Sources:     res.Sources,
		Loading:     false,
		LastUpdated: res.LastUpdated,
		IsFromCache: res.FromCache,
	}
	return h.s
}

// applyError replaces the whole state: a failed fetch never surfaces
// partial results next to its error message.
func (h *stateHolder) applyError(err error) models.AppState {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s = models.AppState{
		Loading: false,
		Error:   err.Error(),
	}
	return h.s
}

func (h *stateHolder) snapshot() models.AppState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}
