// Package registry owns all per-session daemon state. It is the only
// mutable structure shared across connections; locking is per session so
// unrelated sessions are never serialized against each other.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for operations against an unknown or
// expired session id. The transport converts it into a fresh-session
// bootstrap rather than a user-visible error.
var ErrSessionNotFound = errors.New("session not found")

// DefaultHistoryCap bounds the per-session command history.
const DefaultHistoryCap = 200

// DefaultIdleTimeout is how long a session may stay idle before the sweep
// removes it, covering shells that crashed without sending SessionEnd.
const DefaultIdleTimeout = time.Hour

// HistoryEntry is one command observed in a session.
type HistoryEntry struct {
	Command   string
	Cwd       string
	At        time.Time
	Completed bool
	ExitCode  int
}

// Suggestion mirrors a correction suggestion for storage in a session.
// The registry keeps its own type so it depends on neither the correction
// engine nor the wire protocol.
type Suggestion struct {
	Command     string
	Explanation string
	Confidence  float64
}

// Info is a read-only view of one session.
type Info struct {
	ID           string
	Shell        string
	Pid          int
	Cwd          string
	CreatedAt    time.Time
	LastActivity time.Time
	LastExitCode int
	HistoryLen   int
}

// Outcome describes the result of recording a PostCommand event.
type Outcome struct {
	// Command is the text the exit code applies to (latest history entry).
	// Empty when no PreExec was recorded for this session.
	Command string
	Cwd     string
	// History holds the most recent command texts, newest last, for
	// correction context.
	History []string
	// PrevFailed is the previous completed entry iff it exited non-zero,
	// feeding the typo-learning heuristic.
	PrevFailed *HistoryEntry
}

const outboxCap = 4

type session struct {
	mu           sync.Mutex
	id           string
	shell        string
	pid          int
	cwd          string
	createdAt    time.Time
	lastActivity time.Time
	lastExitCode int
	history      []HistoryEntry
	lastSuggest  *Suggestion
	outbox       []Suggestion
}

// Registry creates, mutates, and expires sessions.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	historyCap  int
	idleTimeout time.Duration
	now         func() time.Time
}

// Options configures a Registry. Zero values fall back to defaults.
type Options struct {
	HistoryCap  int
	IdleTimeout time.Duration
	Now         func() time.Time // injectable clock for tests
}

// New returns an empty registry.
func New(opts Options) *Registry {
	r := &Registry{
		sessions:    make(map[string]*session),
		historyCap:  opts.HistoryCap,
		idleTimeout: opts.IdleTimeout,
		now:         opts.Now,
	}
	if r.historyCap <= 0 {
		r.historyCap = DefaultHistoryCap
	}
	if r.idleTimeout <= 0 {
		r.idleTimeout = DefaultIdleTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Register creates a new session and returns its id.
func (r *Registry) Register(shell string, pid int) string {
	now := r.now()
	s := &session{
		id:           uuid.NewString(),
		shell:        shell,
		pid:          pid,
		createdAt:    now,
		lastActivity: now,
	}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s.id
}

func (r *Registry) get(id string) (*session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// RecordPreExec appends a command to the session history, evicting the
// oldest entry when the cap is reached.
func (r *Registry) RecordPreExec(id, command, cwd string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = r.now()
	s.cwd = cwd
	s.history = append(s.history, HistoryEntry{Command: command, Cwd: cwd, At: s.lastActivity})
	if len(s.history) > r.historyCap {
		s.history = s.history[len(s.history)-r.historyCap:]
	}
	return nil
}

// RecordPostCommand updates the session's last exit code, marks the latest
// history entry completed, and returns the context a correction lookup needs.
func (r *Registry) RecordPostCommand(id string, exitCode int, duration time.Duration) (Outcome, error) {
	s, err := r.get(id)
	if err != nil {
		return Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = r.now()
	s.lastExitCode = exitCode

	var out Outcome
	out.Cwd = s.cwd
	if n := len(s.history); n > 0 {
		s.history[n-1].Completed = true
		s.history[n-1].ExitCode = exitCode
		out.Command = s.history[n-1].Command
		if n > 1 {
			prev := s.history[n-2]
			if prev.Completed && prev.ExitCode != 0 {
				p := prev
				out.PrevFailed = &p
			}
		}
		start := n - 10
		if start < 0 {
			start = 0
		}
		for _, h := range s.history[start:] {
			out.History = append(out.History, h.Command)
		}
	}
	return out, nil
}

// Touch refreshes a session's activity timestamp (key binding events).
func (r *Registry) Touch(id string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastActivity = r.now()
	s.mu.Unlock()
	return nil
}

// PushSuggestion stores a suggestion as the session's latest and queues it
// in the outbox for the next poll. The outbox is bounded; the oldest entry
// is dropped on overflow.
func (r *Registry) PushSuggestion(id string, sg Suggestion) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSuggest = &sg
	s.outbox = append(s.outbox, sg)
	if len(s.outbox) > outboxCap {
		s.outbox = s.outbox[len(s.outbox)-outboxCap:]
	}
	return nil
}

// RecordSuggestion stores a suggestion that was already delivered inline,
// so key bindings can re-apply it, without queueing it for a later poll.
func (r *Registry) RecordSuggestion(id string, sg Suggestion) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastSuggest = &sg
	s.mu.Unlock()
	return nil
}

// DrainOutbox returns and clears any suggestions that arrived since the
// last poll.
func (r *Registry) DrainOutbox(id string) ([]Suggestion, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = r.now()
	out := s.outbox
	s.outbox = nil
	return out, nil
}

// LastSuggestion returns the most recent suggestion, if any.
func (r *Registry) LastSuggestion(id string) (*Suggestion, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSuggest == nil {
		return nil, nil
	}
	sg := *s.lastSuggest
	return &sg, nil
}

// Deregister frees all state for a session.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Snapshot returns a read-only view of every session, oldest first.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		infos = append(infos, Info{
			ID:           s.id,
			Shell:        s.shell,
			Pid:          s.pid,
			Cwd:          s.cwd,
			CreatedAt:    s.createdAt,
			LastActivity: s.lastActivity,
			LastExitCode: s.lastExitCode,
			HistoryLen:   len(s.history),
		})
		s.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// SweepOnce removes sessions idle beyond the timeout and returns their ids.
func (r *Registry) SweepOnce() []string {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, s := range r.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActivity)
		s.mu.Unlock()
		if idle > r.idleTimeout {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Run sweeps periodically until ctx is cancelled. The interval is a tenth
// of the idle timeout, floored at ten seconds.
func (r *Registry) Run(ctx context.Context, onSweep func(removed []string)) {
	interval := r.idleTimeout / 10
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.SweepOnce(); len(removed) > 0 && onSweep != nil {
				onSweep(removed)
			}
		}
	}
}
