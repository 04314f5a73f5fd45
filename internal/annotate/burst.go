package annotate

import (
	"bytes"
	"strings"
)

// sub is the ASCII SUB control byte; a doubled SUB at the start of a line
// introduces an annotation marker of the form "\n\x1a\x1a<tag>[ <args>]\n".
const sub = 0x1a

var markerPrefix = []byte{sub, sub}

// Feed appends a chunk of raw subprocess output to the session's burst and
// consumes every complete annotation marker in it. Text between markers is
// routed through the current sink; each parsed annotation is dispatched to
// its handler. Because chunks arrive at arbitrary byte boundaries, the tail
// of the burst that may still grow into a marker or a complete line is
// retained for the next call.
func (s *Session) Feed(chunk []byte) error {
	if s == nil {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	s.burst = append(s.burst, chunk...)

	// Invariant: burst[0] is always at the start of a line. Complete lines
	// are flushed below, and a consumed marker ends with its own newline,
	// so the retained tail never contains one.
	work := s.burst
	for {
		p := markerStart(work)
		if p < 0 {
			break
		}
		nl := bytes.IndexByte(work[p+2:], '\n')
		if nl < 0 {
			// Marker cut off mid-tag by the chunk boundary. Flush the text
			// before it and wait for the rest.
			s.routeLocked(string(work[:p]))
			s.burst = retain(work[p:])
			return nil
		}
		line := string(work[p+2 : p+2+nl])
		rest := work[p+2+nl+1:]

		tag, args := splitAnnotation(line)
		if tag == "" {
			// Malformed marker: no tag before the newline. Treat the whole
			// span as plain text rather than an annotation.
			s.routeLocked(string(work[:p+2+nl+1]))
			work = rest
			continue
		}

		s.routeLocked(string(work[:p]))
		work = rest
		s.dispatchLocked(tag, args)
		if s.closed {
			// A handler tore the session down; drop the remainder.
			return nil
		}
	}

	// No complete marker left. Flush through the last newline; the trailing
	// incomplete line stays in the burst pending further input.
	if i := bytes.LastIndexByte(work, '\n'); i >= 0 {
		s.routeLocked(string(work[:i+1]))
		work = work[i+1:]
	}
	s.burst = retain(work)
	return nil
}

// markerStart returns the index of the first annotation marker in work, or
// -1. A marker begins with a doubled SUB at the start of a line: either at
// index 0 (the burst invariant puts index 0 at a line start) or directly
// after a newline.
func markerStart(work []byte) int {
	if bytes.HasPrefix(work, markerPrefix) {
		return 0
	}
	offset := 0
	for {
		i := bytes.Index(work[offset:], markerPrefix)
		if i < 0 {
			return -1
		}
		p := offset + i
		if work[p-1] == '\n' {
			return p
		}
		offset = p + 2
	}
}

// retain copies the held-back tail so the burst does not pin the (possibly
// large) appended chunk.
func retain(tail []byte) []byte {
	if len(tail) == 0 {
		return nil
	}
	return append([]byte(nil), tail...)
}

// splitAnnotation separates an annotation line into its tag (the leading
// run of non-space bytes) and optional arguments (the remainder of the
// line).
func splitAnnotation(line string) (tag, args string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}
