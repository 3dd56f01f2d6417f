package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"pgregory.net/rapid"
)

// Any request written as a frame must read back identically.
func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := Request{
			Event:      EventType(rapid.SampledFrom([]EventType{EventSessionStart, EventPreExec, EventPostCommand, EventPoll}).Draw(t, "event")),
			SessionID:  rapid.StringMatching(`[a-f0-9-]{0,36}`).Draw(t, "session"),
			Command:    rapid.String().Draw(t, "command"),
			Cwd:        rapid.StringMatching(`(/[a-z]{1,8}){0,4}`).Draw(t, "cwd"),
			ExitCode:   rapid.IntRange(0, 255).Draw(t, "exit"),
			DurationMs: rapid.Int64Range(0, 1<<40).Draw(t, "duration"),
			Diagnostic: rapid.String().Draw(t, "diagnostic"),
		}

		var buf bytes.Buffer
		if err := WriteFrame(&buf, &req); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}

		var got Request
		if err := ReadFrame(&buf, &got); err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if got != req {
			t.Fatalf("round trip mismatch:\n sent %+v\n got  %+v", req, got)
		}
	})
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		if err := WriteFrame(&buf, &Request{Event: EventPing, ExitCode: i}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		var got Request
		if err := ReadFrame(&buf, &got); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got.ExitCode != i {
			t.Errorf("frame %d: got exit %d", i, got.ExitCode)
		}
	}
	// Exhausted stream reads as clean EOF, not a framing error.
	var got Request
	if err := ReadFrame(&buf, &got); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF after last frame, got %v", err)
	}
}

func TestReadFrameRejectsOversizeHeader(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	buf.Write(header[:])

	var got Request
	if err := ReadFrame(&buf, &got); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("want ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var full bytes.Buffer
	if err := WriteFrame(&full, &Request{Event: EventPreExec, Command: "ls -la"}); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewReader(full.Bytes()[:full.Len()-3])

	var got Request
	err := ReadFrame(truncated, &got)
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("want a payload error for a truncated frame, got %v", err)
	}
}

func TestReadFramePartialReads(t *testing.T) {
	var buf bytes.Buffer
	want := Request{Event: EventPostCommand, Command: "make test", ExitCode: 2}
	if err := WriteFrame(&buf, &want); err != nil {
		t.Fatal(err)
	}

	// One byte at a time, as a slow socket would deliver it.
	var got Request
	if err := ReadFrame(iotest(buf.Bytes()), &got); err != nil {
		t.Fatalf("ReadFrame over 1-byte reads: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

type oneByteReader struct {
	data []byte
}

func iotest(data []byte) io.Reader { return &oneByteReader{data: data} }

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestFailOpenAllows(t *testing.T) {
	d := FailOpen()
	if !d.Allow || d.RequireConfirmation || d.BlockedReason != "" || len(d.Warnings) != 0 {
		t.Fatalf("FailOpen must be a bare allow, got %+v", d)
	}
}
