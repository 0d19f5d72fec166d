package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type stubSender struct{ err error }

func (s stubSender) SendText(context.Context, string, string) error { return s.err }

type stubHandler struct{ got []string }

func (h *stubHandler) HandleText(_ context.Context, _ string, text string) error {
	h.got = append(h.got, text)
	return nil
}

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open transcript: %v", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("failed to unmarshal log line: %v", err)
		}
		events = append(events, e)
	}
	return events
}

func TestLoggerWritesPerUserNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	handler := &stubHandler{}
	inbound := WrapHandler(handler, logger)
	outbound := WrapSender(stubSender{}, logger)
	failing := WrapSender(stubSender{err: errors.New("unreachable")}, logger)

	if err := inbound.HandleText(context.Background(), "user-1", "fine"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if err := outbound.SendText(context.Background(), "user-1", "What are you doing?"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if err := failing.SendText(context.Background(), "user-2", "Thanks"); err == nil {
		t.Fatal("Expected wrapped sender to return the delivery error")
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(handler.got) != 1 {
		t.Errorf("Expected inbound text passed through, got %v", handler.got)
	}

	events := readEvents(t, filepath.Join(dir, "user-1.ndjson"))
	if len(events) != 2 {
		t.Fatalf("Expected 2 events for user-1, got %d", len(events))
	}
	if events[0].Direction != Inbound || events[0].Text != "fine" {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[1].Direction != Outbound || events[1].Timestamp.IsZero() {
		t.Errorf("Unexpected second event: %+v", events[1])
	}

	failed := readEvents(t, filepath.Join(dir, "user-2.ndjson"))
	if len(failed) != 1 || failed[0].Error != "unreachable" {
		t.Errorf("Expected failed delivery logged, got %+v", failed)
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Enabled: false}, nil)
	if err != nil || logger != nil {
		t.Fatalf("Expected nil logger, got %v (err %v)", logger, err)
	}
	logger.Log(Event{UserID: "u"})
	if err := logger.Close(); err != nil {
		t.Errorf("Close on nil logger failed: %v", err)
	}

	sender := stubSender{}
	if got := WrapSender(sender, nil); got != Sender(sender) {
		t.Error("Expected sender returned unwrapped")
	}
}

func TestLogDuringCloseDoesNotPanic(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Enabled: true, Dir: t.TempDir(), QueueSize: 4}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				logger.Log(Event{UserID: "u1", Direction: Inbound, Text: "hi"})
			}
		}()
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	wg.Wait()

	before := logger.Dropped()
	logger.Log(Event{UserID: "u1", Direction: Outbound, Text: "late"})
	if got := logger.Dropped(); got != before+1 {
		t.Errorf("Expected event after Close to be dropped, dropped %d -> %d", before, got)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestFileNameSanitizes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"anon_0123abcd": "anon_0123abcd.ndjson",
		"../../etc":     ".._.._etc.ndjson",
		"":              "_.ndjson",
		"..":            "_.ndjson",
		"a b/c":         "a_b_c.ndjson",
	}
	for in, want := range cases {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}
