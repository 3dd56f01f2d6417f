// Package client is the thin socket client used by shell adapters and the
// CLI. It owns the fail-open discipline: callers on the interactive path use
// Check, which can only ever slow a prompt down by the configured deadline
// and never produces an error the shell has to handle.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/fakeyudi/shellguard/internal/protocol"
)

// DefaultTimeout is the interactive-path budget. It sits above the daemon's
// own processing deadline, so a healthy daemon always answers first.
const DefaultTimeout = 50 * time.Millisecond

// Client issues one request per connection over the daemon socket.
type Client struct {
	path    string
	timeout time.Duration
}

// New returns a client for the socket at path. A zero timeout means
// DefaultTimeout.
func New(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{path: path, timeout: timeout}
}

// Do sends a single request and waits for its response, bounded by the
// client timeout end to end.
func (c *Client) Do(req *protocol.Request) (*protocol.Response, error) {
	deadline := time.Now().Add(c.timeout)

	conn, err := net.DialTimeout("unix", c.path, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing daemon: %w", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if err := protocol.WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	var resp protocol.Response
	if err := protocol.ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &resp, nil
}

// Check validates a command about to run. Any transport failure, daemon
// error, or missing decision resolves to allow; the returned session id is
// the one the caller should use from now on (it changes when the daemon
// bootstrapped a fresh session).
func (c *Client) Check(sessionID, command, cwd string) (*protocol.Decision, string) {
	resp, err := c.Do(&protocol.Request{
		Event:     protocol.EventPreExec,
		SessionID: sessionID,
		Command:   command,
		Cwd:       cwd,
	})
	if err != nil || resp.Error != "" || resp.Decision == nil {
		return protocol.FailOpen(), sessionID
	}
	id := resp.SessionID
	if id == "" {
		id = sessionID
	}
	return resp.Decision, id
}

// Report sends a command outcome and returns the inline suggestion, if any.
// Failures are swallowed; reporting is best effort.
func (c *Client) Report(sessionID, command string, exitCode int, durationMs int64, diagnostic string) *protocol.Suggestion {
	resp, err := c.Do(&protocol.Request{
		Event:      protocol.EventPostCommand,
		SessionID:  sessionID,
		Command:    command,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Diagnostic: diagnostic,
	})
	if err != nil || resp.Error != "" {
		return nil
	}
	return resp.Suggestion
}

// Sessions lists the daemon's active sessions.
func (c *Client) Sessions() ([]protocol.SessionInfo, error) {
	resp, err := c.Do(&protocol.Request{Event: protocol.EventListSessions})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("daemon refused: %s", resp.Error)
	}
	return resp.Sessions, nil
}

// Ping checks liveness and returns the active policy snapshot version.
func (c *Client) Ping() (string, error) {
	resp, err := c.Do(&protocol.Request{Event: protocol.EventPing})
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("daemon refused: %s", resp.Error)
	}
	return resp.Version, nil
}
