// Package health tracks per-tier health so the coordinator can degrade
// to faster tiers when a slower one keeps failing.
package health

import (
	"context"
	stderr "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tiercache/tiercache/pkg/errors"
)

// HealthState represents the health of a component
type HealthState int

const (
	StateHealthy HealthState = iota
	// StateDegraded components still serve reads and writes.
	StateDegraded
	// StateReadOnly components serve reads only.
	StateReadOnly
	StateUnavailable
)

func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateReadOnly:
		return "read-only"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

func (s HealthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentHealth is a snapshot of one component's health.
type ComponentHealth struct {
	Name              string      `json:"name"`
	State             HealthState `json:"state"`
	LastStateChange   time.Time   `json:"last_state_change"`
	LastCheck         time.Time   `json:"last_check"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastErrorMessage  string      `json:"last_error_message,omitempty"`
}

// TrackerConfig configures health tracking behavior
type TrackerConfig struct {
	// ErrorThreshold consecutive errors mark a component degraded (or read-only for write errors).
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`
	// UnavailableThreshold consecutive errors mark a component unavailable.
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`
	// CheckInterval drives StartHealthChecks.
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
}

// StateChangeCallback is called when a component's health state changes
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		CheckInterval:        30 * time.Second,
	}
}

// Tracker tracks the health of the cache's tiers.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     TrackerConfig
	clock      clock.Clock
	callbacks  []StateChangeCallback
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) *Tracker {
	return NewTrackerWithClock(config, clock.New())
}

// NewTrackerWithClock creates a tracker that timestamps with clk.
func NewTrackerWithClock(config TrackerConfig, clk clock.Clock) *Tracker {
	def := DefaultConfig()
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = def.ErrorThreshold
	}
	if config.UnavailableThreshold < config.ErrorThreshold {
		config.UnavailableThreshold = max(def.UnavailableThreshold, config.ErrorThreshold)
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
		clock:      clk,
	}
}

// RegisterComponent registers a component in the healthy state. Registering
// twice is a no-op.
func (t *Tracker) RegisterComponent(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; !exists {
		now := t.clock.Now()
		t.components[name] = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastCheck:       now,
		}
	}
}

// RecordSuccess records a successful operation. A component returns to
// healthy once its error streak has been paid down.
func (t *Tracker) RecordSuccess(component string) {
	t.mu.Lock()
	h, exists := t.components[component]
	if !exists {
		t.mu.Unlock()
		return
	}

	oldState := h.State
	h.LastCheck = t.clock.Now()
	if h.ConsecutiveErrors > 0 {
		h.ConsecutiveErrors--
	}
	if h.ConsecutiveErrors == 0 && h.State != StateHealthy {
		t.transition(h, StateHealthy)
	}
	newState := h.State
	t.mu.Unlock()

	if oldState != newState {
		t.notify(component, oldState, newState, nil)
	}
}

// RecordError records a failed operation.
func (t *Tracker) RecordError(component string, err error) {
	t.mu.Lock()
	h, exists := t.components[component]
	if !exists {
		t.mu.Unlock()
		return
	}

	oldState := h.State
	h.LastCheck = t.clock.Now()
	h.ConsecutiveErrors++
	if err != nil {
		h.LastErrorMessage = err.Error()
	}

	newState := h.State
	switch {
	case h.ConsecutiveErrors >= t.config.UnavailableThreshold:
		newState = StateUnavailable
	case h.ConsecutiveErrors >= t.config.ErrorThreshold:
		if isWriteError(err) {
			newState = StateReadOnly
		} else if h.State < StateDegraded {
			newState = StateDegraded
		}
	}
	if newState != oldState {
		t.transition(h, newState)
	}
	t.mu.Unlock()

	if newState != oldState {
		t.notify(component, oldState, newState, err)
	}
}

// GetState returns the component's state. Unknown components are unavailable.
func (t *Tracker) GetState(component string) HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h, exists := t.components[component]; exists {
		return h.State
	}
	return StateUnavailable
}

// GetComponentHealth returns a copy of the component's health.
func (t *Tracker) GetComponentHealth(component string) (ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, exists := t.components[component]
	if !exists {
		return ComponentHealth{}, fmt.Errorf("component %s not registered", component)
	}
	return *h, nil
}

// GetAllComponents returns every component sorted by name.
func (t *Tracker) GetAllComponents() []ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ComponentHealth, 0, len(t.components))
	for _, h := range t.components {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetOverallHealth is the worst state across all components.
func (t *Tracker) GetOverallHealth() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, h := range t.components {
		if h.State > overall {
			overall = h.State
		}
	}
	return overall
}

func (t *Tracker) IsHealthy(component string) bool {
	return t.GetState(component) == StateHealthy
}

func (t *Tracker) CanRead(component string) bool {
	return t.GetState(component) != StateUnavailable
}

func (t *Tracker) CanWrite(component string) bool {
	state := t.GetState(component)
	return state == StateHealthy || state == StateDegraded
}

// OnStateChange registers a callback invoked asynchronously on every transition.
func (t *Tracker) OnStateChange(callback StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

// StartHealthChecks probes components that are not healthy every
// CheckInterval until ctx is done. Unavailable components receive no
// traffic, so probing is their only way back.
func (t *Tracker) StartHealthChecks(ctx context.Context, checkFn func(component string) error) {
	ticker := t.clock.Ticker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckUnhealthy(checkFn)
		}
	}
}

// CheckUnhealthy runs checkFn once for every component that is not healthy.
func (t *Tracker) CheckUnhealthy(checkFn func(component string) error) {
	t.mu.RLock()
	var names []string
	for name, h := range t.components {
		if h.State != StateHealthy {
			names = append(names, name)
		}
	}
	t.mu.RUnlock()

	for _, name := range names {
		if err := checkFn(name); err != nil {
			t.RecordError(name, err)
		} else {
			t.RecordSuccess(name)
		}
	}
}

// transition must be called with t.mu held.
func (t *Tracker) transition(h *ComponentHealth, state HealthState) {
	h.State = state
	h.LastStateChange = t.clock.Now()
	if state == StateHealthy {
		h.ConsecutiveErrors = 0
		h.LastErrorMessage = ""
	}
}

func (t *Tracker) notify(component string, oldState, newState HealthState, err error) {
	t.mu.RLock()
	callbacks := append([]StateChangeCallback(nil), t.callbacks...)
	t.mu.RUnlock()

	for _, cb := range callbacks {
		go cb(component, oldState, newState, err)
	}
}

func isWriteError(err error) bool {
	var ce *errors.CacheError
	if !stderr.As(err, &ce) {
		return false
	}
	return ce.Code == errors.ErrCodeDiskWrite || ce.Code == errors.ErrCodeDiskDelete
}
