package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/checkin/internal/identity"
)

type fakeInbound struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeInbound) HandleText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeInbound) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newChatServer(t *testing.T, hub *Hub, inbound TextHandler) *httptest.Server {
	t.Helper()
	h := NewHandler(hub, inbound, "*", true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.WithUserID(r.Context(), r.URL.Query().Get("user"))
		h.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?user=" + userID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	if f := readFrame(t, conn); f.Type != "hello" || f.Text != userID {
		t.Fatalf("Expected hello for %s, got %+v", userID, f)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return f
}

func writeFrame(t *testing.T, conn *websocket.Conn, f Frame) {
	t.Helper()
	data, _ := json.Marshal(f)
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSendTextWithoutConnection(t *testing.T) {
	hub := NewHub()
	err := hub.SendText(context.Background(), "nobody", "hello")
	if !errors.Is(err, ErrUserUnreachable) {
		t.Errorf("Expected ErrUserUnreachable, got %v", err)
	}
}

func TestSendTextReachesEveryConnection(t *testing.T) {
	hub := NewHub()
	srv := newChatServer(t, hub, &fakeInbound{})

	first := dial(t, srv, "u1")
	second := dial(t, srv, "u1")
	other := dial(t, srv, "u2")
	waitFor(t, func() bool { return hub.Connections("u1") == 2 })

	if err := hub.SendText(context.Background(), "u1", "How are you feeling?"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	for _, conn := range []*websocket.Conn{first, second} {
		if f := readFrame(t, conn); f.Type != "message" || f.Text != "How are you feeling?" {
			t.Errorf("Unexpected frame: %+v", f)
		}
	}

	if err := hub.SendText(context.Background(), "u2", "only you"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if f := readFrame(t, other); f.Text != "only you" {
		t.Errorf("Expected message for u2, got %+v", f)
	}
}

func TestInboundMessagesAndPing(t *testing.T) {
	hub := NewHub()
	inbound := &fakeInbound{}
	srv := newChatServer(t, hub, inbound)
	conn := dial(t, srv, "u1")

	writeFrame(t, conn, Frame{Type: "message", Text: "Europe/Berlin, 8, 22, 3"})
	if err := conn.Write(context.Background(), websocket.MessageText, []byte("plain text")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	writeFrame(t, conn, Frame{Type: "ping"})

	if f := readFrame(t, conn); f.Type != "pong" {
		t.Fatalf("Expected pong, got %+v", f)
	}
	got := inbound.received()
	if len(got) != 2 || got[0] != "Europe/Berlin, 8, 22, 3" || got[1] != "plain text" {
		t.Errorf("Unexpected inbound texts: %v", got)
	}
}

func TestInboundErrorIsReported(t *testing.T) {
	hub := NewHub()
	srv := newChatServer(t, hub, &fakeInbound{err: errors.New("store down")})
	conn := dial(t, srv, "u1")

	writeFrame(t, conn, Frame{Type: "message", Text: "fine"})
	if f := readFrame(t, conn); f.Type != "error" || f.Error == "" {
		t.Errorf("Expected error frame, got %+v", f)
	}
}

func TestConnectionUnregistersOnClose(t *testing.T) {
	hub := NewHub()
	srv := newChatServer(t, hub, &fakeInbound{})
	conn := dial(t, srv, "u1")
	waitFor(t, func() bool { return hub.Connections("u1") == 1 })

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, func() bool { return hub.Connections("u1") == 0 })

	if err := hub.SendText(context.Background(), "u1", "anyone?"); !errors.Is(err, ErrUserUnreachable) {
		t.Errorf("Expected ErrUserUnreachable after close, got %v", err)
	}
}

func TestMissingIdentityRejected(t *testing.T) {
	h := NewHandler(NewHub(), &fakeInbound{}, "*", true)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
}

func TestOriginCheck(t *testing.T) {
	h := NewHandler(NewHub(), &fakeInbound{}, "https://checkin.example.com", false)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if h.checkOrigin(req) {
		t.Error("Expected foreign origin rejected")
	}
	req.Header.Set("Origin", "https://checkin.example.com")
	if !h.checkOrigin(req) {
		t.Error("Expected configured origin accepted")
	}
}
