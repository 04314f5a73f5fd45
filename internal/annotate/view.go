package annotate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdbdeck/gdx/internal/events"
	"github.com/gdbdeck/gdx/internal/telemetry/invariants"
)

// ViewDescriptor declares one auto-refreshing view: the annotation tags that
// invalidate it, the protocol command that rebuilds its contents, and an
// optional demand predicate. Descriptors are registered once and stay static
// for the session's lifetime.
type ViewDescriptor struct {
	// ID names the view and the consumer buffer it fills.
	ID ViewID
	// Command is the debugger command whose output becomes the view's
	// contents. Engine-issued, so it conventionally carries a prefix that
	// keeps it out of the debugger's user history.
	Command string
	// Annotations lists the debugger-state annotations that invalidate the
	// view (for example "breakpoints-invalid").
	Annotations []string
	// Demand reports whether a consumer for the view currently exists. When
	// nil, the frontend's BufferExists is consulted.
	Demand func() bool
}

// RegisterView adds a view to the session's registry and indexes its
// invalidation annotations.
func (s *Session) RegisterView(desc ViewDescriptor) error {
	if s == nil {
		return ErrSessionClosed
	}
	if desc.ID == "" {
		return errors.New("view id is required")
	}
	if desc.Command == "" {
		return errors.New("view command is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if _, exists := s.views[desc.ID]; exists {
		return fmt.Errorf("view %q already registered", desc.ID)
	}

	s.views[desc.ID] = desc
	for _, tag := range desc.Annotations {
		s.triggersFor[tag] = append(s.triggersFor[tag], desc.ID)
	}
	return nil
}

// Trigger requests a refresh of the named view. The request is idempotent:
// if the view has no consumer, or a refresh is already outstanding, nothing
// happens; otherwise one refresh command is enqueued on the idle queue.
func (s *Session) Trigger(id ViewID) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.triggerLocked(id)
}

func (s *Session) triggerLocked(id ViewID) {
	desc, ok := s.views[id]
	if !ok {
		return
	}
	if _, outstanding := s.pending[id]; outstanding {
		return
	}
	if !s.demandLocked(desc) {
		return
	}

	s.pending[id] = struct{}{}
	_ = s.enqueueIdleLocked(Command{
		Text:       desc.Command,
		OnComplete: s.refreshHandler(id),
	})
}

// PendingTriggers reports the views with an outstanding refresh request.
func (s *Session) PendingTriggers() []ViewID {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]ViewID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) demandLocked(desc ViewDescriptor) bool {
	if desc.Demand != nil {
		return desc.Demand()
	}
	return s.front.BufferExists(desc.ID)
}

// refreshHandler builds the completion handler for one view refresh: clear
// the pending mark, replace the view's displayed contents with the
// accumulated payload, then hand off to the host's post-processing hook.
func (s *Session) refreshHandler(id ViewID) CompletionFunc {
	return func(output string) {
		if _, outstanding := s.pending[id]; !outstanding {
			invariants.Violation(context.Background(), invariants.PendingTriggerUnique, invariants.SeverityWarn,
				invariants.ViolationDetails{
					WhatInvariant: "every refresh completion matches one outstanding trigger",
					WhereDetected: "annotate.refresh",
					WhyViolated:   "refresh completed for a view with no pending trigger",
					Additional:    map[string]string{"session_id": s.id, "view": string(id)},
				})
		}
		delete(s.pending, id)
		s.front.ReplaceBufferContents(id, output)
		s.front.NotifyRefreshComplete(id)
		s.bus.Publish(events.Event{
			Type:      events.EventTypeViewRefreshed,
			Timestamp: time.Now().UTC(),
			SessionID: s.id,
			Payload:   string(id),
			Severity:  events.SeverityInfo,
		})
	}
}
