package discovery

import "sync"

// Step is one stage of the discovery pipeline, reported to observers for UI
// polling.
type Step string

const (
	StepPending               Step = "pending"
	StepHealthCheck           Step = "health_check"
	StepFetching              Step = "fetching"
	StepValidating            Step = "validating"
	StepGeneratingPermissions Step = "generating_permissions"
	StepStoring               Step = "storing"
	StepSuccess               Step = "success"
	StepFailed                Step = "failed"
)

// Percent returns the rough completion percentage for the step.
func (s Step) Percent() int {
	switch s {
	case StepPending:
		return 0
	case StepHealthCheck:
		return 10
	case StepFetching:
		return 30
	case StepValidating:
		return 55
	case StepGeneratingPermissions:
		return 70
	case StepStoring:
		return 90
	case StepSuccess, StepFailed:
		return 100
	}
	return 0
}

// Progress is one progress update for an in-flight discovery run.
type Progress struct {
	AppID   string `json:"app_id"`
	RunID   string `json:"run_id"`
	Step    Step   `json:"step"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// Observer receives progress updates. Implementations must not block; slow
// observers are dropped rather than stalling the pipeline.
type Observer interface {
	OnProgress(p Progress)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(p Progress)

// OnProgress calls the wrapped function.
func (f ObserverFunc) OnProgress(p Progress) { f(p) }

// progressTracker fans progress updates out to registered observers and
// keeps the latest update per application for polling.
type progressTracker struct {
	mu        sync.RWMutex
	observers []Observer
	latest    map[string]Progress
}

func newProgressTracker() *progressTracker {
	return &progressTracker{latest: make(map[string]Progress)}
}

func (t *progressTracker) subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

func (t *progressTracker) emit(p Progress) {
	p.Percent = p.Step.Percent()

	t.mu.Lock()
	if p.Step == StepSuccess || p.Step == StepFailed {
		delete(t.latest, p.AppID)
	} else {
		t.latest[p.AppID] = p
	}
	observers := make([]Observer, len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, o := range observers {
		o.OnProgress(p)
	}
}

// Latest returns the most recent non-terminal progress update for the
// application, if a run is in flight.
func (t *progressTracker) Latest(appID string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.latest[appID]
	return p, ok
}
