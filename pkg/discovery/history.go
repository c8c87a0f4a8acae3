package discovery

import (
	"sync"
	"time"
)

// maxHistoryEntries bounds the per-application attempt log.
const maxHistoryEntries = 100

// Attempt is one append-only discovery history entry.
type Attempt struct {
	Timestamp            time.Time     `json:"timestamp"`
	Success              bool          `json:"success"`
	ErrorType            ErrorType     `json:"error_type,omitempty"`
	ErrorMessage         string        `json:"error_message,omitempty"`
	ResponseTime         time.Duration `json:"response_time_ms"`
	EndpointsFound       int           `json:"endpoints_found"`
	PermissionsGenerated int           `json:"permissions_generated"`
}

// History keeps the last hundred discovery attempts per application and
// derives a rolling success rate.
type History struct {
	mu       sync.RWMutex
	attempts map[string][]Attempt
}

// NewHistory creates an empty discovery history.
func NewHistory() *History {
	return &History{attempts: make(map[string][]Attempt)}
}

// Record appends an attempt for the application, evicting the oldest entry
// once the cap is reached.
func (h *History) Record(appID string, attempt Attempt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.attempts[appID], attempt)
	if len(list) > maxHistoryEntries {
		list = list[len(list)-maxHistoryEntries:]
	}
	h.attempts[appID] = list
}

// Attempts returns a copy of the application's attempt log, oldest first.
func (h *History) Attempts(appID string) []Attempt {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.attempts[appID]
	out := make([]Attempt, len(list))
	copy(out, list)
	return out
}

// SuccessRate returns the fraction of recorded attempts that succeeded, or
// zero when no attempts are recorded.
func (h *History) SuccessRate(appID string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.attempts[appID]
	if len(list) == 0 {
		return 0
	}
	var ok int
	for _, a := range list {
		if a.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(list))
}
