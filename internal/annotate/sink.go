package annotate

// Sink identifies the routing destination for plain (non-annotation)
// subprocess output. Exactly one sink is active at any time; every
// transition originates in an annotation handler or in command dispatch.
type Sink int

const (
	// SinkUser routes output to the user-visible transcript.
	SinkUser Sink = iota
	// SinkInferior routes output to the debuggee's I/O stream.
	SinkInferior
	// SinkPreCapture discards output while waiting for the debugger to
	// start echoing an engine-issued command's results.
	SinkPreCapture
	// SinkCapture accumulates output into the in-flight command's private
	// buffer.
	SinkCapture
	// SinkPostCapture discards output between a command's completion and
	// the next top-level prompt.
	SinkPostCapture
	// sinkClosed marks a torn-down session; Feed rejects further input.
	sinkClosed
)

func (k Sink) String() string {
	switch k {
	case SinkUser:
		return "user"
	case SinkInferior:
		return "inferior"
	case SinkPreCapture:
		return "pre-capture"
	case SinkCapture:
		return "capture"
	case SinkPostCapture:
		return "post-capture"
	case sinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink returns the session's current output sink.
func (s *Session) Sink() Sink {
	if s == nil {
		return sinkClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// routeLocked hands a span of plain output to the destination selected by
// the current sink. The destination is a pure function of the sink value.
func (s *Session) routeLocked(text string) {
	if text == "" {
		return
	}
	switch s.sink {
	case SinkUser:
		s.front.AppendTranscript(text)
	case SinkInferior:
		s.front.AppendInferiorIO(text)
	case SinkCapture:
		s.capture.WriteString(text)
	case SinkPreCapture, SinkPostCapture:
		// Transitional waiting states; the debugger is echoing framing we
		// have no use for.
	case sinkClosed:
	}
}
