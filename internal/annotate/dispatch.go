package annotate

// annotationRules maps each recognized annotation tag to its handler. The
// table is static; handlers mutate the sink, the command queues, or the
// pending-trigger set. Tags absent from the table (and from any view's
// invalidation list) are ignored so newer debugger versions that emit
// additional annotations keep working.
var annotationRules = map[string]func(*Session, string){
	"pre-prompt":          (*Session).handlePrePrompt,
	"prompt":              (*Session).handlePrompt,
	"post-prompt":         (*Session).handlePostPrompt,
	"commands":            (*Session).handleSubprompt,
	"overload-choice":     (*Session).handleSubprompt,
	"query":               (*Session).handleSubprompt,
	"prompt-for-continue": (*Session).handleSubprompt,
	"starting":            (*Session).handleStarting,
	"exited":              (*Session).handleStopping,
	"signalled":           (*Session).handleStopping,
	"signal":              (*Session).handleStopping,
	"breakpoint":          (*Session).handleStopping,
	"watchpoint":          (*Session).handleStopping,
	"stopped":             (*Session).handleStopping,

	// Structuring tags emitted inside captured command output. They never
	// change the sink and must not surface as visible text; consuming them
	// here keeps them out of the routed stream.
	"display-begin":       (*Session).handleStructuring,
	"display-end":         (*Session).handleStructuring,
	"field-begin":         (*Session).handleStructuring,
	"field-end":           (*Session).handleStructuring,
	"array-section-begin": (*Session).handleStructuring,
	"array-section-end":   (*Session).handleStructuring,
}

// dispatchLocked looks up the handler for a parsed annotation and runs it,
// then fires any view invalidations registered for the tag.
func (s *Session) dispatchLocked(tag, args string) {
	if handler, ok := annotationRules[tag]; ok {
		handler(s, args)
		if s.closed {
			return
		}
	}
	for _, id := range s.triggersFor[tag] {
		s.triggerLocked(id)
	}
}

// handleStarting marks the start of inferior execution: subsequent plain
// output belongs to the debuggee until a stop annotation arrives.
func (s *Session) handleStarting(string) {
	if s.sink != SinkUser {
		s.protocolErrorLocked("starting")
		s.sink = SinkUser
		return
	}
	s.sink = SinkInferior
}

// handleStopping covers the family of annotations reporting that the
// inferior stopped running (exited, signalled, signal, breakpoint,
// watchpoint, stopped). Output reverts to the transcript; arriving while
// already there is harmless.
func (s *Session) handleStopping(string) {
	switch s.sink {
	case SinkInferior, SinkUser:
		s.sink = SinkUser
	default:
		s.protocolErrorLocked("stop")
		s.sink = SinkUser
	}
}

// handlePrePrompt fires just before the debugger prints a prompt. For an
// engine-issued command this is the moment its output is fully accumulated:
// the in-flight command's completion handler runs against the capture
// buffer.
func (s *Session) handlePrePrompt(string) {
	switch s.sink {
	case SinkUser:
	case SinkCapture:
		s.sink = SinkPostCapture
		current := s.current
		s.current = nil
		if current != nil && current.OnComplete != nil {
			current.OnComplete(s.capture.String())
		}
	default:
		s.protocolErrorLocked("pre-prompt")
		s.sink = SinkUser
	}
}

// handlePostPrompt fires after the prompt has been printed. For an
// engine-issued command it opens the capture window.
func (s *Session) handlePostPrompt(string) {
	switch s.sink {
	case SinkUser:
	case SinkPreCapture:
		s.sink = SinkCapture
	default:
		s.protocolErrorLocked("post-prompt")
		s.sink = SinkUser
	}
}

func (s *Session) handleStructuring(string) {}
