// Package transcript writes per-user NDJSON logs of chat traffic.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"
)

// Directions of a logged message.
const (
	Inbound  = "inbound"
	Outbound = "outbound"
)

// Config controls where and how transcripts are written.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one line of a transcript.
type Event struct {
	Timestamp time.Time `json:"ts"`
	UserID    string    `json:"user_id"`
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
	Error     string    `json:"error,omitempty"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Logger appends events asynchronously. A nil *Logger discards everything.
type Logger struct {
	dir     string
	events  chan Event
	done    chan struct{}
	log     *slog.Logger
	dropped atomic.Int64

	// mu guards closed against Log racing with Close.
	mu     sync.RWMutex
	closed bool
	files  map[string]*os.File
}

// New starts a transcript writer. It returns nil when transcripts are disabled.
func New(cfg Config, log *slog.Logger) (*Logger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	l := &Logger{
		dir:    cfg.Dir,
		events: make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		log:    log,
		files:  make(map[string]*os.File),
	}
	go l.run()
	return l, nil
}

// Log enqueues an event, dropping it when the queue is full or the
// logger is closed.
func (l *Logger) Log(e Event) {
	if l == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.events <- e:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.log.Warn("Transcript queue full, dropping events", "dropped", n)
		}
	}
}

// Dropped returns how many events were discarded.
func (l *Logger) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close flushes queued events and closes all files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()
	<-l.done

	var firstErr error
	for userID, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close transcript for %s: %w", userID, err)
		}
	}
	return firstErr
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.events {
		if err := l.write(e); err != nil {
			l.log.Warn("Failed to write transcript event", "user_id", e.UserID, "error", err)
		}
	}
}

func (l *Logger) write(e Event) error {
	f, err := l.file(e.UserID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (l *Logger) file(userID string) (*os.File, error) {
	if f, ok := l.files[userID]; ok {
		return f, nil
	}
	path := filepath.Join(l.dir, FileName(userID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open transcript %s: %w", path, err)
	}
	l.files[userID] = f
	return f, nil
}

// FileName maps a user id to its transcript file name.
func FileName(userID string) string {
	name := unsafeName.ReplaceAllString(userID, "_")
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name + ".ndjson"
}

// Sender delivers outbound text.
type Sender interface {
	SendText(ctx context.Context, userID, text string) error
}

// TextHandler consumes inbound text.
type TextHandler interface {
	HandleText(ctx context.Context, userID, text string) error
}

type loggingSender struct {
	next Sender
	log  *Logger
}

// WrapSender logs every outbound message, including failed deliveries.
func WrapSender(next Sender, log *Logger) Sender {
	if log == nil {
		return next
	}
	return &loggingSender{next: next, log: log}
}

func (s *loggingSender) SendText(ctx context.Context, userID, text string) error {
	err := s.next.SendText(ctx, userID, text)
	e := Event{UserID: userID, Direction: Outbound, Text: text}
	if err != nil {
		e.Error = err.Error()
	}
	s.log.Log(e)
	return err
}

type loggingHandler struct {
	next TextHandler
	log  *Logger
}

// WrapHandler logs every inbound message before handing it on.
func WrapHandler(next TextHandler, log *Logger) TextHandler {
	if log == nil {
		return next
	}
	return &loggingHandler{next: next, log: log}
}

func (h *loggingHandler) HandleText(ctx context.Context, userID, text string) error {
	h.log.Log(Event{UserID: userID, Direction: Inbound, Text: text})
	return h.next.HandleText(ctx, userID, text)
}
