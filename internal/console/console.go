// Package console provides the reference Frontend implementation: an
// in-memory transcript, inferior I/O buffer, and named view buffers, with
// optional live writers for interactive use.
package console

import (
	"io"
	"strings"
	"sync"

	"github.com/gdbdeck/gdx/internal/annotate"
)

// Option customizes console construction.
type Option func(*Console)

// WithTranscriptWriter mirrors transcript output to a live writer.
func WithTranscriptWriter(w io.Writer) Option {
	return func(c *Console) {
		if w != nil {
			c.transcriptWriter = w
		}
	}
}

// WithInferiorWriter mirrors debuggee output to a live writer.
func WithInferiorWriter(w io.Writer) Option {
	return func(c *Console) {
		if w != nil {
			c.inferiorWriter = w
		}
	}
}

// WithFrameHook installs a callback invoked when the engine requests a
// display refresh of the current stack frame.
func WithFrameHook(hook func()) Option {
	return func(c *Console) {
		if hook != nil {
			c.frameHook = hook
		}
	}
}

// Console is a thread-safe Frontend backed by in-memory buffers. Views are
// on demand: a view buffer exists only between Open and Close, and the
// engine skips refreshes for views with no open buffer.
type Console struct {
	mu sync.Mutex

	transcript strings.Builder
	inferior   strings.Builder
	views      map[annotate.ViewID]string
	refreshed  map[annotate.ViewID]int
	frames     int

	transcriptWriter io.Writer
	inferiorWriter   io.Writer
	frameHook        func()
}

// New creates an empty console with no open views.
func New(options ...Option) *Console {
	console := &Console{
		views:     map[annotate.ViewID]string{},
		refreshed: map[annotate.ViewID]int{},
	}
	for _, option := range options {
		option(console)
	}
	return console
}

// AppendTranscript implements annotate.Frontend.
func (c *Console) AppendTranscript(text string) {
	c.mu.Lock()
	c.transcript.WriteString(text)
	w := c.transcriptWriter
	c.mu.Unlock()
	if w != nil {
		_, _ = io.WriteString(w, text)
	}
}

// AppendInferiorIO implements annotate.Frontend.
func (c *Console) AppendInferiorIO(text string) {
	c.mu.Lock()
	c.inferior.WriteString(text)
	w := c.inferiorWriter
	c.mu.Unlock()
	if w != nil {
		_, _ = io.WriteString(w, text)
	}
}

// BufferExists implements annotate.Frontend.
func (c *Console) BufferExists(id annotate.ViewID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.views[id]
	return ok
}

// ReplaceBufferContents implements annotate.Frontend.
func (c *Console) ReplaceBufferContents(id annotate.ViewID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.views[id]; !ok {
		// The consumer closed while the refresh was in flight; the payload
		// is stale and has nowhere to go.
		return
	}
	c.views[id] = text
}

// NotifyRefreshComplete implements annotate.Frontend.
func (c *Console) NotifyRefreshComplete(id annotate.ViewID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshed[id]++
}

// ShowFrame implements annotate.Frontend.
func (c *Console) ShowFrame() {
	c.mu.Lock()
	c.frames++
	hook := c.frameHook
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// OpenView makes a consumer buffer for the view exist, enabling refreshes.
func (c *Console) OpenView(id annotate.ViewID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.views[id]; !ok {
		c.views[id] = ""
	}
}

// CloseView discards the view's buffer; further refreshes are skipped.
func (c *Console) CloseView(id annotate.ViewID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
}

// Transcript returns the accumulated user-visible output.
func (c *Console) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.String()
}

// InferiorOutput returns the accumulated debuggee output.
func (c *Console) InferiorOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inferior.String()
}

// ViewContents returns the view's current contents and whether it is open.
func (c *Console) ViewContents(id annotate.ViewID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.views[id]
	return text, ok
}

// RefreshCount reports how many refreshes have completed for the view.
func (c *Console) RefreshCount(id annotate.ViewID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshed[id]
}

// FrameRequests reports how many times the engine asked for a frame display.
func (c *Console) FrameRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}
