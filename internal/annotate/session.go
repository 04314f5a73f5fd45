// Package annotate implements the client side of the annotation-delimited
// text protocol spoken by a debugger subprocess running with --annotate=2.
//
// The engine demultiplexes the subprocess's stdout into user-visible
// transcript text, inferior (debuggee) I/O, and machine-directed command
// output, while managing two priority tiers of outbound commands and a set
// of auto-refreshing views that re-query the debugger whenever it reports
// relevant state changes.
package annotate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdbdeck/gdx/internal/events"
	"github.com/gdbdeck/gdx/internal/telemetry/invariants"
)

// ErrSessionClosed indicates an operation on a session after teardown.
var ErrSessionClosed = errors.New("session is torn down")

// ErrProtocol indicates an annotation requested a sink transition that is
// invalid for the current sink state.
var ErrProtocol = errors.New("protocol error")

// ViewID names one auxiliary read-only display kept in sync with debugger
// state.
type ViewID string

// Frontend is the host-supplied collaborator set the engine routes output
// and refresh notifications to. Implementations must tolerate calls from the
// session's feed goroutine.
type Frontend interface {
	// AppendTranscript receives plain debugger output addressed to the user.
	AppendTranscript(text string)
	// AppendInferiorIO receives output produced by the debuggee.
	AppendInferiorIO(text string)
	// BufferExists reports whether a consumer display for the view is open.
	// It is the demand predicate behind view triggers.
	BufferExists(id ViewID) bool
	// ReplaceBufferContents swaps in the freshly accumulated view payload.
	ReplaceBufferContents(id ViewID, text string)
	// NotifyRefreshComplete runs view-specific post-processing after a
	// refresh has been applied.
	NotifyRefreshComplete(id ViewID)
	// ShowFrame asks the host to display the current stack frame. Called
	// when the debugger reaches a top-level prompt with no queued work.
	ShowFrame()
}

// EventBus publishes session lifecycle and diagnostic events.
type EventBus interface {
	Publish(event events.Event)
}

// CompletionFunc consumes the accumulated output of one engine-issued
// command. It runs synchronously on the session's feed goroutine and must
// not call back into the session.
type CompletionFunc func(output string)

// Command is one outbound debugger command. User-typed commands carry no
// completion handler; commands issued by the engine on a view's behalf pair
// the command text with the handler that consumes its output. Commands are
// immutable once enqueued.
type Command struct {
	Text       string
	OnComplete CompletionFunc
}

type noopBus struct{}

func (noopBus) Publish(events.Event) {}

// Option customizes session construction.
type Option func(*Session)

// WithLogger configures the structured logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBus configures the event bus session events are published to.
func WithBus(bus EventBus) Option {
	return func(s *Session) {
		if bus != nil {
			s.bus = bus
		}
	}
}

// WithID configures the session identifier used in logs and events.
func WithID(id string) Option {
	return func(s *Session) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			s.id = trimmed
		}
	}
}

// Session holds all state associated with one attached debugger subprocess:
// the unconsumed output burst, the two command queues, the output sink, the
// in-flight command, and the registered views with their pending refresh
// requests.
//
// All parsing and handler dispatch happens synchronously inside Feed, which
// is driven by exactly one goroutine (the subprocess read loop). The mutex
// exists because EnqueueHigh and EnqueueIdle may be called from other
// goroutines; it never makes handler execution concurrent.
type Session struct {
	mu sync.Mutex

	id     string
	stdin  io.Writer
	front  Frontend
	logger *log.Logger
	bus    EventBus

	burst      []byte
	inputQueue []Command
	idleQueue  []Command
	prompting  bool
	sink       Sink
	current    *Command
	capture    bytes.Buffer

	views       map[ViewID]ViewDescriptor
	triggersFor map[string][]ViewID
	pending     map[ViewID]struct{}

	closed bool
}

// NewSession creates the session for one attached debugger subprocess.
// stdin is the subprocess's standard input; front receives routed output.
func NewSession(stdin io.Writer, front Frontend, options ...Option) (*Session, error) {
	if stdin == nil {
		return nil, errors.New("stdin writer is required")
	}
	if front == nil {
		return nil, errors.New("frontend is required")
	}

	session := &Session{
		id:          "gdx-session",
		stdin:       stdin,
		front:       front,
		logger:      log.New(io.Discard),
		bus:         noopBus{},
		sink:        SinkUser,
		views:       map[ViewID]ViewDescriptor{},
		triggersFor: map[string][]ViewID{},
		pending:     map[ViewID]struct{}{},
	}
	for _, option := range options {
		option(session)
	}
	return session, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Prompting reports whether the debugger is idle at a top-level prompt with
// no queued work.
func (s *Session) Prompting() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompting
}

// Teardown discards all queued commands and pending view refreshes without
// invoking their completion handlers, and moves the sink to a terminal state
// that rejects further Feed calls. It is idempotent and carries no other
// side effects.
func (s *Session) Teardown() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.closed = true
	s.sink = sinkClosed
	s.inputQueue = nil
	s.idleQueue = nil
	s.current = nil
	s.prompting = false
	s.burst = nil
	s.capture.Reset()
	for id := range s.pending {
		delete(s.pending, id)
	}

	s.logger.Info("session torn down", "session_id", s.id)
	s.bus.Publish(events.Event{
		Type:      events.EventTypeSessionDetached,
		SessionID: s.id,
		Severity:  events.SeverityInfo,
	})
}

// fail aborts the session after an internal invariant violation. Only the
// offending session dies; other sessions in the process are unaffected.
func (s *Session) failLocked(reason string) {
	s.logger.Error("session aborted", "session_id", s.id, "reason", reason)
	s.closed = true
	s.sink = sinkClosed
	s.inputQueue = nil
	s.idleQueue = nil
	s.current = nil
	s.prompting = false
	for id := range s.pending {
		delete(s.pending, id)
	}
	s.bus.Publish(events.Event{
		Type:      events.EventTypeSessionDetached,
		SessionID: s.id,
		Payload:   reason,
		Severity:  events.SeverityError,
	})
}

// protocolError reports an invalid sink transition to the host as a
// diagnostic. Callers force the sink back to SinkUser so the transcript does
// not silently lose output.
func (s *Session) protocolErrorLocked(tag string) {
	err := fmt.Errorf("%w: unexpected annotation %q while sink is %s", ErrProtocol, tag, s.sink)
	s.logger.Warn("unexpected annotation", "session_id", s.id, "tag", tag, "sink", s.sink.String())
	invariants.CheckSinkTransition(context.Background(), "annotate.dispatch", s.sink.String(), tag, false)
	s.bus.Publish(events.Event{
		Type:      events.EventTypeProtocolError,
		Timestamp: time.Now().UTC(),
		SessionID: s.id,
		Payload:   err.Error(),
		Severity:  events.SeverityWarn,
	})
}
