package annotate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gdbdeck/gdx/internal/events"
	"github.com/gdbdeck/gdx/internal/telemetry/invariants"
)

// EnqueueHigh submits a user-originated command. If the debugger is idle at
// a top-level prompt the command is written immediately; otherwise it joins
// the tail of the high-priority queue and is sent at the next prompt.
func (s *Session) EnqueueHigh(text string) error {
	if s == nil {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	cmd := Command{Text: text}
	if s.prompting {
		return s.sendLocked(cmd)
	}
	s.inputQueue = append(s.inputQueue, cmd)
	return nil
}

// EnqueueIdle submits a low-priority housekeeping command, optionally with a
// completion handler that receives the command's accumulated output. Idle
// commands are sent immediately only when the debugger is prompting and no
// high-priority work is queued; they are never sent in response to a
// subprompt.
func (s *Session) EnqueueIdle(text string, onComplete CompletionFunc) error {
	if s == nil {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.enqueueIdleLocked(Command{Text: text, OnComplete: onComplete})
}

func (s *Session) enqueueIdleLocked(cmd Command) error {
	if s.prompting && len(s.inputQueue) == 0 {
		return s.sendLocked(cmd)
	}
	s.idleQueue = append(s.idleQueue, cmd)
	return nil
}

// sendLocked writes one command to the subprocess's stdin. Sending an
// engine-issued command resets the capture buffer and parks the sink in
// SinkPreCapture until the debugger acknowledges with post-prompt; a user
// command keeps its output on the transcript.
func (s *Session) sendLocked(cmd Command) error {
	inFlight := 1
	if s.current != nil {
		inFlight++
	}
	invariants.CheckSingleCommandInFlight(context.Background(), "annotate.send", inFlight, s.id)

	s.prompting = false
	s.current = &cmd
	if cmd.OnComplete != nil {
		s.capture.Reset()
		s.sink = SinkPreCapture
	} else {
		s.sink = SinkUser
	}

	text := strings.TrimRight(cmd.Text, "\n") + "\n"
	if _, err := io.WriteString(s.stdin, text); err != nil {
		s.logger.Error("write command", "session_id", s.id, "err", err)
		return fmt.Errorf("write command to debugger: %w", err)
	}

	s.bus.Publish(events.Event{
		Type:      events.EventTypeCommandSent,
		Timestamp: time.Now().UTC(),
		SessionID: s.id,
		Payload:   cmd.Text,
		Severity:  events.SeverityInfo,
	})
	return nil
}

// dequeueLocked pops the oldest command of the given tier. Callers confirm
// non-emptiness first; an empty pop is a programming error that aborts the
// session.
func (s *Session) dequeueLocked(queue *[]Command) (Command, bool) {
	if !invariants.CheckQueueNonEmpty(context.Background(), "annotate.dequeue", len(*queue), s.id) {
		s.failLocked("dequeue on empty command queue")
		return Command{}, false
	}
	cmd := (*queue)[0]
	*queue = (*queue)[1:]
	return cmd, true
}

// handlePrompt reacts to the debugger reaching a genuine top-level prompt:
// drain the high-priority queue first, then the idle queue, and only when
// both are empty mark the session as prompting and ask the host to display
// the current frame.
func (s *Session) handlePrompt(string) {
	switch s.sink {
	case SinkUser:
	case SinkPostCapture:
		s.sink = SinkUser
	default:
		s.protocolErrorLocked("prompt")
		s.sink = SinkUser
	}
	s.current = nil

	if len(s.inputQueue) > 0 {
		cmd, ok := s.dequeueLocked(&s.inputQueue)
		if ok {
			_ = s.sendLocked(cmd)
		}
		return
	}
	if len(s.idleQueue) > 0 {
		cmd, ok := s.dequeueLocked(&s.idleQueue)
		if ok {
			_ = s.sendLocked(cmd)
		}
		return
	}
	s.prompting = true
	s.front.ShowFrame()
}

// handleSubprompt reacts to a nested prompt (confirmation, overload choice,
// pagination). Only high-priority commands may answer a subprompt: sending
// queued housekeeping work here would desynchronize the debugger's
// interactive state, so the idle queue is left untouched.
func (s *Session) handleSubprompt(string) {
	if len(s.inputQueue) > 0 {
		cmd, ok := s.dequeueLocked(&s.inputQueue)
		if ok {
			_ = s.sendLocked(cmd)
		}
		return
	}
	s.prompting = true
}
