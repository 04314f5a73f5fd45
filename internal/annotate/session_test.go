package annotate

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gdbdeck/gdx/internal/events"
)

// fakeFrontend records every routed span and refresh notification so tests
// can assert on exact routing behavior.
type fakeFrontend struct {
	transcript strings.Builder
	inferior   strings.Builder
	buffers    map[ViewID]bool
	replaced   map[ViewID]string
	refreshed  map[ViewID]int
	frames     int
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{
		buffers:   map[ViewID]bool{},
		replaced:  map[ViewID]string{},
		refreshed: map[ViewID]int{},
	}
}

func (f *fakeFrontend) AppendTranscript(text string) { f.transcript.WriteString(text) }
func (f *fakeFrontend) AppendInferiorIO(text string) { f.inferior.WriteString(text) }
func (f *fakeFrontend) BufferExists(id ViewID) bool  { return f.buffers[id] }
func (f *fakeFrontend) ReplaceBufferContents(id ViewID, text string) {
	f.replaced[id] = text
}
func (f *fakeFrontend) NotifyRefreshComplete(id ViewID) { f.refreshed[id]++ }
func (f *fakeFrontend) ShowFrame()                      { f.frames++ }

// captureBus records published events for assertions.
type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBus) ofType(eventType string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var matched []events.Event
	for _, event := range b.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newTestSession(t *testing.T, options ...Option) (*Session, *fakeFrontend, *bytes.Buffer) {
	t.Helper()
	front := newFakeFrontend()
	stdin := &bytes.Buffer{}
	session, err := NewSession(stdin, front, options...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session, front, stdin
}

func feed(t *testing.T, session *Session, input string) {
	t.Helper()
	if err := session.Feed([]byte(input)); err != nil {
		t.Fatalf("feed %q: %v", input, err)
	}
}

func sentLines(stdin *bytes.Buffer) []string {
	raw := stdin.String()
	if raw == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(raw, "\n"), "\n")
}

func TestNewSessionRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := NewSession(nil, newFakeFrontend()); err == nil {
		t.Fatal("expected error for nil stdin writer")
	}
	if _, err := NewSession(&bytes.Buffer{}, nil); err == nil {
		t.Fatal("expected error for nil frontend")
	}
}

func TestNewSessionDefaults(t *testing.T) {
	t.Parallel()

	session, _, _ := newTestSession(t)
	if session.Sink() != SinkUser {
		t.Fatalf("initial sink = %s, want %s", session.Sink(), SinkUser)
	}
	if session.Prompting() {
		t.Fatal("new session should not be prompting")
	}
	if session.ID() == "" {
		t.Fatal("expected non-empty default session id")
	}
}

func TestWithIDTrimsWhitespace(t *testing.T) {
	t.Parallel()

	session, _, _ := newTestSession(t, WithID("  gdx-42  "))
	if session.ID() != "gdx-42" {
		t.Fatalf("session id = %q, want %q", session.ID(), "gdx-42")
	}

	fallback, _, _ := newTestSession(t, WithID("   "))
	if fallback.ID() != "gdx-session" {
		t.Fatalf("blank id should keep default, got %q", fallback.ID())
	}
}

func TestTeardownDiscardsQueuedWorkSilently(t *testing.T) {
	t.Parallel()

	bus := &captureBus{}
	session, _, stdin := newTestSession(t, WithBus(bus))

	handlerRan := false
	if err := session.EnqueueIdle("server info locals", func(string) { handlerRan = true }); err != nil {
		t.Fatalf("enqueue idle: %v", err)
	}
	if err := session.EnqueueHigh("continue"); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	session.Teardown()

	if handlerRan {
		t.Fatal("teardown must not invoke completion handlers")
	}
	if stdin.Len() != 0 {
		t.Fatalf("teardown must not flush queued commands, wrote %q", stdin.String())
	}
	if err := session.Feed([]byte("late output\n")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("feed after teardown = %v, want ErrSessionClosed", err)
	}
	if err := session.EnqueueHigh("step"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("enqueue after teardown = %v, want ErrSessionClosed", err)
	}
	if err := session.EnqueueIdle("server bt", nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("enqueue idle after teardown = %v, want ErrSessionClosed", err)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	t.Parallel()

	bus := &captureBus{}
	session, _, _ := newTestSession(t, WithBus(bus))

	session.Teardown()
	session.Teardown()

	detached := bus.ofType(events.EventTypeSessionDetached)
	if len(detached) != 1 {
		t.Fatalf("detach events = %d, want exactly 1", len(detached))
	}
}

func TestNilSessionIsInert(t *testing.T) {
	t.Parallel()

	var session *Session
	if err := session.Feed([]byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("nil feed = %v, want ErrSessionClosed", err)
	}
	if err := session.EnqueueHigh("step"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("nil enqueue = %v, want ErrSessionClosed", err)
	}
	session.Teardown()
	session.Trigger("stack")
	if session.Prompting() {
		t.Fatal("nil session must not report prompting")
	}
	if got := session.PendingTriggers(); got != nil {
		t.Fatalf("nil pending triggers = %v, want nil", got)
	}
}
