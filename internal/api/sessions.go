package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/ruledit/internal/clock"
	"grimm.is/ruledit/internal/ruleset"
)

var errSessionNotFound = errors.New("session not found")

// sessionEntry guards one editing session.
type sessionEntry struct {
	mu       sync.Mutex
	session  *ruleset.Session
	lastUsed time.Time
}

// sessionView is the JSON form of a session.
type sessionView struct {
	ID           string           `json:"session_id"`
	RuleSet      *ruleset.RuleSet `json:"ruleset"`
	EditingChain string           `json:"editing_chain,omitempty"`
	EditingIndex int              `json:"editing_index"`
	Rendered     string           `json:"rendered"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// view snapshots the session. The rule set is cloned so the snapshot can be
// encoded after the entry lock is released.
func (e *sessionEntry) view() sessionView {
	s := e.session
	return sessionView{
		ID:           s.ID,
		RuleSet:      s.RuleSet.Clone(),
		EditingChain: s.EditingChain,
		EditingIndex: s.EditingIndex,
		Rendered:     s.Render(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// rulesetUpdate is the payload pushed to watchers.
type rulesetUpdate struct {
	Rendered string           `json:"rendered"`
	RuleSet  *ruleset.RuleSet `json:"ruleset"`
}

func (v sessionView) update() rulesetUpdate {
	return rulesetUpdate{Rendered: v.Rendered, RuleSet: v.RuleSet}
}

// sessionRegistry holds the live sessions.
type sessionRegistry struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	clock   clock.Clock

	// onChange is called with the session count after it changes.
	onChange func(n int)
	// onExpire is called with the id of each expired session.
	onExpire func(id string)
}

func newSessionRegistry(ttl time.Duration, clk clock.Clock) *sessionRegistry {
	return &sessionRegistry{
		entries:  make(map[string]*sessionEntry),
		ttl:      ttl,
		clock:    clock.Or(clk),
		onChange: func(int) {},
		onExpire: func(string) {},
	}
}

// create registers a new session around rs and returns a snapshot of it.
func (r *sessionRegistry) create(rs *ruleset.RuleSet) sessionView {
	id := uuid.NewString()
	e := &sessionEntry{
		session:  ruleset.NewSession(id, rs, r.clock.Now),
		lastUsed: r.clock.Now(),
	}
	v := e.view()

	r.mu.Lock()
	r.entries[id] = e
	n := len(r.entries)
	r.mu.Unlock()

	r.onChange(n)
	return v
}

// with runs fn holding the session's lock.
func (r *sessionRegistry) with(id string, fn func(e *sessionEntry) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return errSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = r.clock.Now()
	return fn(e)
}

// remove drops a session. It reports whether the session existed.
func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	n := len(r.entries)
	r.mu.Unlock()

	if ok {
		r.onChange(n)
	}
	return ok
}

func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// expire removes sessions idle for longer than the TTL and returns their ids.
func (r *sessionRegistry) expire() []string {
	now := r.clock.Now()

	r.mu.Lock()
	var expired []string
	for id, e := range r.entries {
		e.mu.Lock()
		idle := now.Sub(e.lastUsed)
		e.mu.Unlock()
		if idle > r.ttl {
			delete(r.entries, id)
			expired = append(expired, id)
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	if len(expired) > 0 {
		r.onChange(n)
		for _, id := range expired {
			r.onExpire(id)
		}
	}
	return expired
}

// janitor expires idle sessions until ctx is done.
func (r *sessionRegistry) janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expire()
		}
	}
}

// janitorInterval picks a sweep period for ttl.
func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}
