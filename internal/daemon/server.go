// Package daemon implements the shellguard supervisory process: a Unix
// socket server that validates commands before execution and proposes
// corrections after failures. Every path through the server preserves the
// fail-open contract: the worst outcome of any internal error is that a
// command runs unassisted.
package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/shellguard/internal/backend"
	"github.com/fakeyudi/shellguard/internal/config"
	"github.com/fakeyudi/shellguard/internal/correct"
	"github.com/fakeyudi/shellguard/internal/learning"
	"github.com/fakeyudi/shellguard/internal/policy"
	"github.com/fakeyudi/shellguard/internal/protocol"
	"github.com/fakeyudi/shellguard/internal/redact"
	"github.com/fakeyudi/shellguard/internal/registry"
)

// backendTimeout bounds a single backend consultation. Results landing after
// the originating response go to the session outbox instead.
const backendTimeout = 10 * time.Second

// Server owns all daemon state and serves the socket protocol.
type Server struct {
	log *zap.Logger
	// cfg is the current merged configuration. Reload swaps it and the
	// detached learning path re-reads it, so access goes through the pointer.
	cfg      atomic.Pointer[config.Config]
	reg      *registry.Registry
	snapshot atomic.Pointer[policy.Snapshot]
	engine   atomic.Pointer[correct.Engine]
	limiter  *rateLimiter
	backend  backend.Suggester
	store    *learning.Store // nil when learning is disabled
	deadline time.Duration
	uid      uint32

	detached sync.WaitGroup
}

// New builds a server from the merged configuration. store and suggester may
// be nil; nil disables the corresponding feature.
func New(cfg config.Config, log *zap.Logger, store *learning.Store, suggester backend.Suggester) (*Server, error) {
	snap, err := config.Snapshot(cfg)
	if err != nil {
		return nil, err
	}
	if suggester == nil {
		suggester = backend.Disabled{}
	}

	s := &Server{
		log: log,
		reg: registry.New(registry.Options{
			HistoryCap:  cfg.HistoryCap,
			IdleTimeout: time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		}),
		limiter: newRateLimiter(
			time.Duration(cfg.RateLimitWindowSec)*time.Second,
			cfg.RateLimitMax,
			nil,
		),
		backend:  suggester,
		store:    store,
		deadline: time.Duration(cfg.RequestDeadlineMs) * time.Millisecond,
		uid:      uint32(os.Getuid()),
	}
	s.cfg.Store(&cfg)
	s.snapshot.Store(snap)
	s.rebuildEngine()
	return s, nil
}

// rebuildEngine composes the correction engine from the current merged
// configuration's typo table overlaid with learned pairs.
func (s *Server) rebuildEngine() {
	cfg := s.cfg.Load()
	typos := make(map[string]string, len(cfg.TypoTable))
	if s.store != nil {
		learned, err := s.store.All()
		if err != nil {
			s.log.Warn("reading learned corrections", zap.Error(err))
		}
		for k, v := range learned {
			typos[k] = v
		}
	}
	// Explicit configuration wins over learned history.
	for k, v := range cfg.TypoTable {
		typos[k] = v
	}
	s.engine.Store(correct.New(correct.Config{
		TypoTable: typos,
		Threshold: cfg.ConfidenceThreshold,
	}))
}

// Reload re-reads the configuration layers the daemon started with (global
// plus project) and swaps in the merged result and a freshly compiled policy
// snapshot. On any error the previous configuration keeps serving.
func (s *Server) Reload() {
	global, err := config.LoadGlobal()
	if err != nil {
		s.log.Warn("config reload failed, keeping current policy", zap.Error(err))
		return
	}
	project, err := config.LoadProject()
	if err != nil {
		s.log.Warn("config reload failed, keeping current policy", zap.Error(err))
		return
	}
	merged := config.Merge(global, project)
	snap, err := config.Snapshot(merged)
	if err != nil {
		s.log.Warn("config reload failed, keeping current policy", zap.Error(err))
		return
	}
	s.cfg.Store(&merged)
	s.snapshot.Store(snap)
	s.rebuildEngine()
	s.log.Info("configuration reloaded", zap.String("policy_version", snap.Version()))
}

// Run serves ln until ctx is cancelled. It owns the accept loop, the idle
// session sweeper, and the config file watcher.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		s.reg.Run(ctx, func(removed []string) {
			s.log.Info("swept idle sessions", zap.Int("count", len(removed)))
		})
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.limiter.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.limiter.sweep()
			}
		}
	})

	g.Go(func() error {
		path, err := config.GlobalPath()
		if err != nil {
			s.log.Warn("config watch unavailable", zap.Error(err))
			return nil
		}
		if err := config.Watch(ctx, path, s.Reload); err != nil {
			s.log.Warn("config watch stopped", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Warn("accept failed", zap.Error(err))
				continue
			}
			go s.handleConn(ctx, conn)
		}
	})

	err := g.Wait()
	s.detached.Wait()
	return err
}

// handleConn serves one client connection: authenticate the peer once, then
// process frames until the client hangs up.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return
	}
	cred, err := peerCred(uc)
	if err != nil {
		s.log.Warn("peer credential check failed", zap.Error(err))
		return
	}
	if cred.Uid != s.uid {
		s.log.Warn("rejecting foreign peer", zap.Uint32("uid", cred.Uid))
		s.writeResponse(conn, &protocol.Response{Error: protocol.ErrCodeUnauthorized})
		return
	}

	for {
		var req protocol.Request
		if err := protocol.ReadFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) {
				// Malformed payload; the stream may be out of sync, so
				// answer once and hang up.
				s.writeResponse(conn, &protocol.Response{Error: protocol.ErrCodeMalformed})
			}
			return
		}

		if !s.limiter.allow(cred.Pid) {
			s.writeResponse(conn, &protocol.Response{Error: protocol.ErrCodeRateLimited})
			continue
		}

		resp := s.handleWithDeadline(ctx, &req)
		if !s.writeResponse(conn, resp) {
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp *protocol.Response) bool {
	if err := protocol.WriteFrame(conn, resp); err != nil {
		s.log.Debug("writing response", zap.Error(err))
		return false
	}
	return true
}

// handleWithDeadline runs the dispatch under the server-side deadline. The
// deadline is shorter than the client's, so on overrun the client receives
// an explicit fail-open response instead of silence.
func (s *Server) handleWithDeadline(ctx context.Context, req *protocol.Request) *protocol.Response {
	done := make(chan *protocol.Response, 1)
	go func() {
		done <- s.dispatch(req)
	}()

	timer := time.NewTimer(s.deadline)
	defer timer.Stop()

	select {
	case resp := <-done:
		return resp
	case <-timer.C:
	case <-ctx.Done():
	}

	s.log.Warn("request deadline exceeded, failing open",
		zap.String("event", string(req.Event)))
	resp := &protocol.Response{SessionID: req.SessionID}
	if req.Event == protocol.EventPreExec {
		resp.Decision = protocol.FailOpen()
	}
	return resp
}

func (s *Server) dispatch(req *protocol.Request) *protocol.Response {
	switch req.Event {
	case protocol.EventSessionStart:
		return s.handleSessionStart(req)
	case protocol.EventPreExec:
		return s.handlePreExec(req)
	case protocol.EventPostCommand:
		return s.handlePostCommand(req)
	case protocol.EventKeyBinding:
		return s.handleKeyBinding(req)
	case protocol.EventSessionEnd:
		return s.handleSessionEnd(req)
	case protocol.EventPoll:
		return s.handlePoll(req)
	case protocol.EventListSessions:
		return s.handleListSessions()
	case protocol.EventPing:
		return &protocol.Response{Version: s.snapshot.Load().Version()}
	default:
		return &protocol.Response{Error: protocol.ErrCodeMalformed}
	}
}

func (s *Server) handleSessionStart(req *protocol.Request) *protocol.Response {
	id := s.reg.Register(string(req.Shell), req.Pid)
	s.log.Info("session started",
		zap.String("session", id),
		zap.String("shell", string(req.Shell)),
		zap.Int("pid", req.Pid))
	return &protocol.Response{SessionID: id}
}

// bootstrap replaces an unknown session id with a fresh registration. Shell
// adapters survive daemon restarts this way: the next event re-establishes
// state instead of erroring until the shell exits.
func (s *Server) bootstrap(req *protocol.Request) string {
	id := s.reg.Register(string(req.Shell), req.Pid)
	s.log.Info("bootstrapped unknown session",
		zap.String("stale", req.SessionID),
		zap.String("session", id))
	return id
}

func (s *Server) handlePreExec(req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{SessionID: req.SessionID}

	snap := s.snapshot.Load()
	verdict := snap.Evaluate(req.Command, req.Cwd)
	resp.Decision = &protocol.Decision{
		Allow:               verdict.Allow,
		Warnings:            verdict.Warnings,
		RequireConfirmation: verdict.RequireConfirmation,
		BlockedReason:       verdict.BlockedReason,
	}

	if verdict.Allow {
		if err := s.reg.RecordPreExec(req.SessionID, req.Command, req.Cwd); err != nil {
			if errors.Is(err, registry.ErrSessionNotFound) {
				resp.SessionID = s.bootstrap(req)
				// Best effort: the fresh session is empty, this cannot fail
				// with not-found again.
				_ = s.reg.RecordPreExec(resp.SessionID, req.Command, req.Cwd)
			}
		}
	} else {
		s.log.Info("command blocked",
			zap.String("session", req.SessionID),
			zap.String("command", redact.Redact(req.Command)),
			zap.String("reason", verdict.BlockedReason))
	}
	return resp
}

func (s *Server) handlePostCommand(req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{SessionID: req.SessionID}

	outcome, err := s.reg.RecordPostCommand(req.SessionID, req.ExitCode, time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			resp.SessionID = s.bootstrap(req)
		}
		return resp
	}

	if req.ExitCode == 0 {
		s.maybeLearn(req.SessionID, outcome)
		return resp
	}
	if outcome.Command == "" {
		return resp
	}

	sg := s.engine.Load().Suggest(correct.Input{
		Command:    outcome.Command,
		ExitCode:   req.ExitCode,
		Diagnostic: req.Diagnostic,
		Cwd:        outcome.Cwd,
		History:    outcome.History,
	})
	if sg != nil {
		resp.Suggestion = &protocol.Suggestion{
			Command:     sg.Command,
			Explanation: sg.Explanation,
			Confidence:  sg.Confidence,
		}
		_ = s.reg.RecordSuggestion(req.SessionID, registry.Suggestion{
			Command:     sg.Command,
			Explanation: sg.Explanation,
			Confidence:  sg.Confidence,
		})
		return resp
	}

	if s.cfg.Load().BackendEnabled {
		s.consultBackend(req.SessionID, outcome.Command, req.Diagnostic)
	}
	return resp
}

// maybeLearn records (previous failure, this success) as a learned typo pair
// when the two commands are similar enough to be a manual correction. Runs
// detached; the response never waits on disk.
func (s *Server) maybeLearn(sessionID string, outcome registry.Outcome) {
	if s.store == nil || outcome.PrevFailed == nil || outcome.Command == "" {
		return
	}
	failed, succeeded := outcome.PrevFailed.Command, outcome.Command
	if !correct.SimilarEnough(failed, succeeded) {
		return
	}
	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		if err := s.store.Record(failed, succeeded); err != nil {
			s.log.Warn("recording learned correction", zap.Error(err))
			return
		}
		s.rebuildEngine()
		s.log.Debug("learned correction",
			zap.String("session", sessionID),
			zap.String("from", redact.Redact(failed)),
			zap.String("to", redact.Redact(succeeded)))
	}()
}

// consultBackend asks the external suggester off the request path and queues
// any result in the session outbox for the next poll.
func (s *Server) consultBackend(sessionID, command, diagnostic string) {
	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()

		sg, err := s.backend.Suggest(ctx, redact.Redact(command), redact.Redact(diagnostic))
		if err != nil {
			s.log.Warn("backend consultation failed", zap.Error(err))
			return
		}
		if sg == nil {
			return
		}
		_ = s.reg.PushSuggestion(sessionID, registry.Suggestion{
			Command:     sg.Command,
			Explanation: sg.Explanation,
			Confidence:  1, // backend results are not scored locally
		})
	}()
}

func (s *Server) handleKeyBinding(req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{SessionID: req.SessionID}
	if err := s.reg.Touch(req.SessionID); err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			resp.SessionID = s.bootstrap(req)
		}
		return resp
	}
	if sg, _ := s.reg.LastSuggestion(req.SessionID); sg != nil {
		resp.Suggestion = &protocol.Suggestion{
			Command:     sg.Command,
			Explanation: sg.Explanation,
			Confidence:  sg.Confidence,
		}
	}
	return resp
}

func (s *Server) handleSessionEnd(req *protocol.Request) *protocol.Response {
	if err := s.reg.Deregister(req.SessionID); err == nil {
		s.log.Info("session ended", zap.String("session", req.SessionID))
	}
	return &protocol.Response{SessionID: req.SessionID}
}

func (s *Server) handlePoll(req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{SessionID: req.SessionID}
	drained, err := s.reg.DrainOutbox(req.SessionID)
	if err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			resp.SessionID = s.bootstrap(req)
		}
		return resp
	}
	for _, sg := range drained {
		resp.Suggestions = append(resp.Suggestions, protocol.Suggestion{
			Command:     sg.Command,
			Explanation: sg.Explanation,
			Confidence:  sg.Confidence,
		})
	}
	return resp
}

func (s *Server) handleListSessions() *protocol.Response {
	infos := s.reg.Snapshot()
	resp := &protocol.Response{}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, protocol.SessionInfo{
			ID:           info.ID,
			Shell:        protocol.ShellKind(info.Shell),
			Pid:          info.Pid,
			Cwd:          info.Cwd,
			CreatedAt:    info.CreatedAt,
			LastActivity: info.LastActivity,
			LastExitCode: info.LastExitCode,
			HistoryLen:   info.HistoryLen,
		})
	}
	return resp
}
