package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/fakeyudi/shellguard/internal/backend"
	"github.com/fakeyudi/shellguard/internal/client"
	"github.com/fakeyudi/shellguard/internal/config"
	"github.com/fakeyudi/shellguard/internal/correct"
	"github.com/fakeyudi/shellguard/internal/learning"
	"github.com/fakeyudi/shellguard/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testTimeout is generous so slow CI machines never trip the fail-open path
// in tests that assert real decisions.
const testTimeout = 2 * time.Second

type testDaemon struct {
	client *client.Client
	srv    *Server
	home   string
	stop   func()
}

func startDaemon(t *testing.T, cfg config.Config, store *learning.Store, suggester backend.Suggester) *testDaemon {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	srv, err := New(cfg, zap.NewNop(), store, suggester)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sockPath := filepath.Join(t.TempDir(), "d.sock")
	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Run(ctx, ln)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(stop)

	return &testDaemon{
		client: client.New(sockPath, testTimeout),
		srv:    srv,
		home:   home,
		stop:   stop,
	}
}

func testConfig() config.Config {
	cfg := config.Defaults()
	// Keep the processing deadline out of the way; deadline behavior is the
	// client's concern and these tests assert real decisions.
	cfg.RequestDeadlineMs = 1500
	return cfg
}

func TestDaemonEndToEnd(t *testing.T) {
	d := startDaemon(t, testConfig(), nil, nil)

	// Session start hands out an id.
	resp, err := d.client.Do(&protocol.Request{Event: protocol.EventSessionStart, Shell: protocol.ShellZsh, Pid: 1234})
	if err != nil {
		t.Fatalf("session start: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("session start must return an id")
	}
	sid := resp.SessionID

	// A dangerous command is blocked with a reason.
	decision, gotSid := d.client.Check(sid, "rm -rf /", "/home/user")
	if decision.Allow {
		t.Fatalf("rm -rf / must be blocked, got %+v", decision)
	}
	if decision.BlockedReason != "Recursive delete of root" {
		t.Errorf("reason: got %q", decision.BlockedReason)
	}
	if gotSid != sid {
		t.Errorf("session id changed unexpectedly: %s -> %s", sid, gotSid)
	}

	// An ordinary command passes silently.
	decision, _ = d.client.Check(sid, "ls -la", "/home/user")
	if !decision.Allow || len(decision.Warnings) != 0 {
		t.Fatalf("ls must pass silently, got %+v", decision)
	}

	// Its failure produces a correction.
	decision, _ = d.client.Check(sid, "gti status", "/home/user")
	if !decision.Allow {
		t.Fatalf("gti status must be allowed, got %+v", decision)
	}
	sg := d.client.Report(sid, "gti status", 127, 12, "zsh: command not found: gti")
	if sg == nil {
		t.Fatal("want a suggestion for gti status")
	}
	if sg.Command != "git status" {
		t.Errorf("suggestion: got %q", sg.Command)
	}

	// The suggestion is retrievable via the key binding event.
	resp, err = d.client.Do(&protocol.Request{Event: protocol.EventKeyBinding, SessionID: sid, Binding: "apply"})
	if err != nil {
		t.Fatalf("key binding: %v", err)
	}
	if resp.Suggestion == nil || resp.Suggestion.Command != "git status" {
		t.Fatalf("key binding suggestion: %+v", resp.Suggestion)
	}

	// Session end removes the session; listing no longer shows it.
	if _, err := d.client.Do(&protocol.Request{Event: protocol.EventSessionEnd, SessionID: sid}); err != nil {
		t.Fatalf("session end: %v", err)
	}
	sessions, err := d.client.Sessions()
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	for _, s := range sessions {
		if s.ID == sid {
			t.Fatal("ended session still listed")
		}
	}
}

func TestBootstrapUnknownSession(t *testing.T) {
	d := startDaemon(t, testConfig(), nil, nil)

	decision, newSid := d.client.Check("no-such-session", "echo hi", "/tmp")
	if !decision.Allow {
		t.Fatalf("bootstrap must not change the verdict, got %+v", decision)
	}
	if newSid == "no-such-session" || newSid == "" {
		t.Fatalf("client must receive a fresh session id, got %q", newSid)
	}

	// The fresh id works for subsequent events.
	if sg := d.client.Report(newSid, "echo hi", 0, 1, ""); sg != nil {
		t.Fatalf("no suggestion expected, got %+v", sg)
	}
}

func TestRateLimitRejectsExplicitly(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 3
	d := startDaemon(t, cfg, nil, nil)

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := d.client.Do(&protocol.Request{Event: protocol.EventPing})
		if err != nil {
			t.Fatalf("ping %d: %v", i, err)
		}
		if resp.Error == protocol.ErrCodeRateLimited {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("want an explicit rate_limited rejection")
	}

	// The interactive wrapper resolves the rejection to allow.
	decision, _ := d.client.Check("", "ls", "/tmp")
	if !decision.Allow {
		t.Fatalf("rate-limited check must fail open, got %+v", decision)
	}
}

func TestPingAndStatus(t *testing.T) {
	d := startDaemon(t, testConfig(), nil, nil)

	version, err := d.client.Ping()
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if version == "" {
		t.Fatal("ping must report the policy version")
	}
}

func TestServerToleratesZeroRateLimitConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitWindowSec = 0
	cfg.RateLimitMax = 0
	d := startDaemon(t, cfg, nil, nil)

	if _, err := d.client.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestCheckFailsOpenWhenDaemonAway(t *testing.T) {
	c := client.New(filepath.Join(t.TempDir(), "absent.sock"), 50*time.Millisecond)
	decision, sid := c.Check("some-session", "rm -rf /", "/")
	if !decision.Allow {
		t.Fatalf("unreachable daemon must fail open, got %+v", decision)
	}
	if sid != "some-session" {
		t.Errorf("session id must be preserved, got %q", sid)
	}
}

func TestLearningRecordsManualCorrection(t *testing.T) {
	store, err := learning.Open(filepath.Join(t.TempDir(), "learned.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := testConfig()
	cfg.LearningEnabled = true
	d := startDaemon(t, cfg, store, nil)

	resp, err := d.client.Do(&protocol.Request{Event: protocol.EventSessionStart, Shell: protocol.ShellBash, Pid: 1})
	if err != nil {
		t.Fatal(err)
	}
	sid := resp.SessionID

	// A failure followed by a similar success is a manual correction.
	d.client.Check(sid, "gitx stats", "/tmp")
	d.client.Report(sid, "gitx stats", 127, 5, "command not found")
	d.client.Check(sid, "git stats", "/tmp")
	d.client.Report(sid, "git stats", 0, 5, "")

	// Stop the daemon so detached writers have flushed.
	d.stop()

	all, err := store.All()
	if err != nil {
		t.Fatal(err)
	}
	if all["gitx stats"] != "git stats" {
		t.Fatalf("learned pairs: %v", all)
	}
}

func TestReloadSurvivesLearnedRebuild(t *testing.T) {
	store, err := learning.Open(filepath.Join(t.TempDir(), "learned.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := testConfig()
	cfg.LearningEnabled = true
	d := startDaemon(t, cfg, store, nil)

	// An edited global config lands a new typo entry via Reload.
	cfgDir := filepath.Join(d.home, ".config", "shellguard")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"typo_table":{"gstat":"git status"},"learning_enabled":true,"request_deadline_ms":1500}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	d.srv.Reload()

	suggest := func(cmd string) string {
		sg := d.srv.engine.Load().Suggest(correct.Input{Command: cmd, ExitCode: 127, Diagnostic: "command not found"})
		if sg == nil {
			return ""
		}
		return sg.Command
	}
	if got := suggest("gstat"); got != "git status" {
		t.Fatalf("reloaded typo entry not live: got %q", got)
	}

	// A manual correction in a live session rebuilds the engine with the
	// learned pair.
	resp, err := d.client.Do(&protocol.Request{Event: protocol.EventSessionStart, Shell: protocol.ShellZsh, Pid: 7})
	if err != nil {
		t.Fatal(err)
	}
	sid := resp.SessionID
	d.client.Check(sid, "gitx stats", "/tmp")
	d.client.Report(sid, "gitx stats", 127, 5, "command not found")
	d.client.Check(sid, "git stats", "/tmp")
	d.client.Report(sid, "git stats", 0, 5, "")

	// Stop the daemon so the detached rebuild has finished.
	d.stop()

	if got := suggest("gitx stats"); got != "git stats" {
		t.Fatalf("learned pair missing: got %q", got)
	}
	// The rebuild must compose from the reloaded configuration, not the one
	// the daemon started with.
	if got := suggest("gstat"); got != "git status" {
		t.Fatalf("reloaded typo entry lost after learned rebuild: got %q", got)
	}
}

type stubSuggester struct {
	command string
}

func (s stubSuggester) Suggest(_ context.Context, failed, _ string) (*backend.Suggestion, error) {
	if failed == "" {
		return nil, errors.New("empty command")
	}
	return &backend.Suggestion{Command: s.command, Explanation: "from backend"}, nil
}

func TestBackendSuggestionArrivesViaPoll(t *testing.T) {
	cfg := testConfig()
	cfg.BackendEnabled = true
	d := startDaemon(t, cfg, nil, stubSuggester{command: "make rebuild"})

	resp, err := d.client.Do(&protocol.Request{Event: protocol.EventSessionStart, Shell: protocol.ShellZsh, Pid: 2})
	if err != nil {
		t.Fatal(err)
	}
	sid := resp.SessionID

	// A failure no local strategy can explain falls through to the backend.
	d.client.Check(sid, "zxqv --frob", "/tmp")
	if sg := d.client.Report(sid, "zxqv --frob", 2, 5, "frobnication unsupported"); sg != nil {
		t.Fatalf("no inline suggestion expected, got %+v", sg)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := d.client.Do(&protocol.Request{Event: protocol.EventPoll, SessionID: sid})
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if len(resp.Suggestions) > 0 {
			if resp.Suggestions[0].Command != "make rebuild" {
				t.Fatalf("polled suggestion: %+v", resp.Suggestions[0])
			}
			if !strings.Contains(resp.Suggestions[0].Explanation, "backend") {
				t.Errorf("explanation: %q", resp.Suggestions[0].Explanation)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("backend suggestion never reached the outbox")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
