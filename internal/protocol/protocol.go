// Package protocol defines the request/response types for the shellguard
// daemon IPC. Messages are JSON envelopes framed with a 4-byte big-endian
// length prefix and sent over a Unix domain socket.
package protocol

import "time"

// EventType identifies the shell lifecycle event carried by a Request.
// Each request carries exactly one event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventPreExec      EventType = "pre_exec"
	EventPostCommand  EventType = "post_command"
	EventKeyBinding   EventType = "key_binding"
	EventSessionEnd   EventType = "session_end"

	// EventPoll drains suggestions that arrived after the originating
	// PostCommand response was already sent (late backend results).
	EventPoll EventType = "poll"

	// EventListSessions and EventPing serve the CLI, not shell adapters.
	EventListSessions EventType = "list_sessions"
	EventPing         EventType = "ping"
)

// ShellKind tags the shell flavor of a session. Core logic never branches
// on it; adapters use it to pick the right rendering on their side.
type ShellKind string

const (
	ShellBash  ShellKind = "bash"
	ShellZsh   ShellKind = "zsh"
	ShellFish  ShellKind = "fish"
	ShellPosix ShellKind = "sh"
	ShellOther ShellKind = "other"
)

// Request is sent from a shell adapter (or the CLI) to the daemon.
// Only the fields relevant to the event type are populated.
type Request struct {
	Event     EventType `json:"event"`
	SessionID string    `json:"session_id,omitempty"`

	// SessionStart
	Shell ShellKind `json:"shell,omitempty"`
	Pid   int       `json:"pid,omitempty"`

	// PreExec
	Command string `json:"command,omitempty"`
	Cwd     string `json:"cwd,omitempty"`

	// PostCommand
	ExitCode   int    `json:"exit_code,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`

	// KeyBinding
	Binding string `json:"binding,omitempty"`
}

// ErrorCode classifies a request-level failure. Clients treat every code as
// non-fatal: the worst outcome is "assistance unavailable for this command".
type ErrorCode string

const (
	ErrCodeSessionNotFound ErrorCode = "session_not_found"
	ErrCodeRateLimited     ErrorCode = "rate_limited"
	ErrCodeUnauthorized    ErrorCode = "unauthorized"
	ErrCodeMalformed       ErrorCode = "malformed"
)

// Decision is the policy engine's verdict on a PreExec event.
type Decision struct {
	Allow               bool     `json:"allow"`
	Warnings            []string `json:"warnings,omitempty"`
	RequireConfirmation bool     `json:"require_confirmation,omitempty"`
	BlockedReason       string   `json:"blocked_reason,omitempty"`
}

// Suggestion is a proposed replacement for a failed command.
type Suggestion struct {
	Command     string  `json:"command"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

// SessionInfo is a read-only view of one active session, served to the CLI.
type SessionInfo struct {
	ID           string    `json:"id"`
	Shell        ShellKind `json:"shell"`
	Pid          int       `json:"pid"`
	Cwd          string    `json:"cwd"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	LastExitCode int       `json:"last_exit_code"`
	HistoryLen   int       `json:"history_len"`
}

// Response is sent from the daemon back to the client. At most one of the
// payload fields is set, matching the request's event type.
type Response struct {
	// SessionID echoes the session the response applies to. On a
	// session_not_found bootstrap it carries the freshly created id, which
	// the adapter must adopt for subsequent events.
	SessionID string `json:"session_id,omitempty"`

	Decision    *Decision     `json:"decision,omitempty"`
	Suggestion  *Suggestion   `json:"suggestion,omitempty"`
	Suggestions []Suggestion  `json:"suggestions,omitempty"` // poll drain
	Sessions    []SessionInfo `json:"sessions,omitempty"`

	// Version identifies the active policy snapshot (ping).
	Version string `json:"version,omitempty"`

	Error ErrorCode `json:"error,omitempty"`
}

// FailOpen is the decision a client must assume whenever the daemon cannot
// be reached, times out, or rejects the request: allow, no warnings.
func FailOpen() *Decision {
	return &Decision{Allow: true}
}
