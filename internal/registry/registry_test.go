package registry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestRegisterAndSnapshot(t *testing.T) {
	r := New(Options{})
	id1 := r.Register("zsh", 100)
	id2 := r.Register("bash", 200)
	if id1 == id2 {
		t.Fatal("session ids must be unique")
	}

	infos := r.Snapshot()
	if len(infos) != 2 {
		t.Fatalf("want 2 sessions, got %d", len(infos))
	}
}

func TestUnknownSessionErrors(t *testing.T) {
	r := New(Options{})
	if err := r.RecordPreExec("nope", "ls", "/"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("RecordPreExec: got %v", err)
	}
	if _, err := r.RecordPostCommand("nope", 0, 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("RecordPostCommand: got %v", err)
	}
	if err := r.Touch("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Touch: got %v", err)
	}
	if _, err := r.DrainOutbox("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("DrainOutbox: got %v", err)
	}
	if err := r.Deregister("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Deregister: got %v", err)
	}
}

// However many commands run, history never exceeds the cap and always keeps
// the most recent entries.
func TestHistoryBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cap := rapid.IntRange(1, 20).Draw(t, "cap")
		n := rapid.IntRange(0, 60).Draw(t, "commands")

		r := New(Options{HistoryCap: cap})
		id := r.Register("zsh", 1)

		for i := 0; i < n; i++ {
			if err := r.RecordPreExec(id, fmt.Sprintf("cmd-%d", i), "/"); err != nil {
				t.Fatal(err)
			}
		}

		infos := r.Snapshot()
		if len(infos) != 1 {
			t.Fatalf("want 1 session, got %d", len(infos))
		}
		want := n
		if want > cap {
			want = cap
		}
		if infos[0].HistoryLen != want {
			t.Fatalf("history len %d, want %d (cap %d, ran %d)", infos[0].HistoryLen, want, cap, n)
		}

		// The surviving entries are the newest ones.
		if n > 0 {
			out, err := r.RecordPostCommand(id, 1, 0)
			if err != nil {
				t.Fatal(err)
			}
			if out.Command != fmt.Sprintf("cmd-%d", n-1) {
				t.Fatalf("latest entry %q, want cmd-%d", out.Command, n-1)
			}
		}
	})
}

func TestPostCommandOutcome(t *testing.T) {
	r := New(Options{})
	id := r.Register("bash", 1)

	if err := r.RecordPreExec(id, "gti status", "/repo"); err != nil {
		t.Fatal(err)
	}
	out, err := r.RecordPostCommand(id, 127, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if out.Command != "gti status" || out.Cwd != "/repo" {
		t.Fatalf("outcome: %+v", out)
	}
	if out.PrevFailed != nil {
		t.Fatal("first command has no predecessor")
	}

	// The next command sees the failed predecessor.
	if err := r.RecordPreExec(id, "git status", "/repo"); err != nil {
		t.Fatal(err)
	}
	out, err = r.RecordPostCommand(id, 0, 5*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if out.PrevFailed == nil || out.PrevFailed.Command != "gti status" || out.PrevFailed.ExitCode != 127 {
		t.Fatalf("PrevFailed: %+v", out.PrevFailed)
	}

	// A successful predecessor is not reported.
	if err := r.RecordPreExec(id, "ls", "/repo"); err != nil {
		t.Fatal(err)
	}
	out, err = r.RecordPostCommand(id, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.PrevFailed != nil {
		t.Fatalf("successful predecessor must not be reported: %+v", out.PrevFailed)
	}
}

func TestOutboxBoundedAndDrained(t *testing.T) {
	r := New(Options{})
	id := r.Register("zsh", 1)

	for i := 0; i < outboxCap+3; i++ {
		if err := r.PushSuggestion(id, Suggestion{Command: fmt.Sprintf("fix-%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.DrainOutbox(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != outboxCap {
		t.Fatalf("outbox len %d, want %d", len(got), outboxCap)
	}
	// The oldest entries were dropped.
	if got[0].Command != "fix-3" {
		t.Errorf("oldest surviving entry %q, want fix-3", got[0].Command)
	}

	// Drained means gone.
	got, err = r.DrainOutbox(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("second drain must be empty, got %v", got)
	}
}

func TestLastSuggestion(t *testing.T) {
	r := New(Options{})
	id := r.Register("zsh", 1)

	if sg, err := r.LastSuggestion(id); err != nil || sg != nil {
		t.Fatalf("fresh session: %v %v", sg, err)
	}

	if err := r.RecordSuggestion(id, Suggestion{Command: "git status", Confidence: 0.9}); err != nil {
		t.Fatal(err)
	}
	sg, err := r.LastSuggestion(id)
	if err != nil || sg == nil || sg.Command != "git status" {
		t.Fatalf("got %v %v", sg, err)
	}

	// RecordSuggestion must not feed the outbox.
	if out, _ := r.DrainOutbox(id); len(out) != 0 {
		t.Fatalf("inline suggestion leaked into outbox: %v", out)
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := New(Options{IdleTimeout: time.Hour, Now: clock})

	idle := r.Register("zsh", 1)
	busy := r.Register("bash", 2)

	now = now.Add(50 * time.Minute)
	if err := r.Touch(busy); err != nil {
		t.Fatal(err)
	}

	now = now.Add(20 * time.Minute) // idle is now 70m stale, busy 20m
	removed := r.SweepOnce()
	if len(removed) != 1 || removed[0] != idle {
		t.Fatalf("removed %v, want [%s]", removed, idle)
	}
	if err := r.Touch(busy); err != nil {
		t.Fatalf("active session must survive the sweep: %v", err)
	}
	if err := r.Touch(idle); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("swept session must be gone, got %v", err)
	}
}

func TestSnapshotOrderedByCreation(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := New(Options{Now: clock})

	first := r.Register("zsh", 1)
	now = now.Add(time.Minute)
	second := r.Register("bash", 2)

	infos := r.Snapshot()
	if len(infos) != 2 || infos[0].ID != first || infos[1].ID != second {
		t.Fatalf("order: %+v", infos)
	}
}
