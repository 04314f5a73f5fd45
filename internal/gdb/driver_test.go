package gdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdbdeck/gdx/internal/annotate"
	"github.com/gdbdeck/gdx/internal/config"
	"github.com/gdbdeck/gdx/internal/console"
	"github.com/gdbdeck/gdx/internal/views"
	"github.com/gdbdeck/gdx/test"
)

// safeBuffer guards concurrent reads from the test against writes from the
// session's send path.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeHandle struct {
	stdin   *safeBuffer
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	killOnce sync.Once
	waitCh   chan struct{}
}

func newFakeHandle() *fakeHandle {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	return &fakeHandle{
		stdin:   &safeBuffer{},
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		stderrR: stderrR,
		stderrW: stderrW,
		waitCh:  make(chan struct{}),
	}
}

func (h *fakeHandle) Stdin() io.Writer  { return h.stdin }
func (h *fakeHandle) Stdout() io.Reader { return h.stdoutR }
func (h *fakeHandle) Stderr() io.Reader { return h.stderrR }
func (h *fakeHandle) PID() int          { return 4242 }

func (h *fakeHandle) Wait() error {
	<-h.waitCh
	return nil
}

func (h *fakeHandle) Kill() error {
	h.killOnce.Do(func() {
		_ = h.stdoutW.Close()
		_ = h.stderrW.Close()
		close(h.waitCh)
	})
	return nil
}

type fakeStarter struct {
	handle *fakeHandle
	err    error

	gotPath string
	gotArgs []string
}

func (s *fakeStarter) Start(_ context.Context, path string, args ...string) (ProcessHandle, error) {
	s.gotPath = path
	s.gotArgs = args
	if s.err != nil {
		return nil, s.err
	}
	return s.handle, nil
}

func testConfig() *config.Config {
	return &config.Config{
		GDBPath:         "gdb",
		GDBArgs:         []string{"--annotate=2", "-q"},
		CommandPrefix:   "server ",
		ReadBufferBytes: 16,
	}
}

func waitFor(t *testing.T, what string, predicate func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !predicate() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAttachFeedsSessionAndSendsCommands(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	starter := &fakeStarter{handle: handle}
	front := console.New()

	client, err := Attach(test.Context(t), testConfig(), front, WithStarter(starter))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	if starter.gotPath != "gdb" {
		t.Fatalf("started path = %q, want %q", starter.gotPath, "gdb")
	}
	if len(starter.gotArgs) != 2 || starter.gotArgs[0] != "--annotate=2" {
		t.Fatalf("started args = %v, want annotation flags", starter.gotArgs)
	}
	if got := client.Session().ID(); got != "gdx-4242" {
		t.Fatalf("session id = %q, want %q", got, "gdx-4242")
	}

	go func() {
		_, _ = io.WriteString(handle.stdoutW, "GNU gdb 14.2\n\x1a\x1apre-prompt\n\x1a\x1aprompt\n")
	}()

	waitFor(t, "idle prompt", client.Session().Prompting)
	if got := front.Transcript(); got != "GNU gdb 14.2\n" {
		t.Fatalf("transcript = %q, want banner only", got)
	}

	if err := client.Send("break main"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := handle.stdin.String(); got != "break main\n" {
		t.Fatalf("stdin = %q, want the user command", got)
	}

	if err := client.Detach(); err != nil {
		t.Fatalf("detach: %v", err)
	}
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client shutdown")
	}
	if err := client.Send("step"); !errors.Is(err, annotate.ErrSessionClosed) {
		t.Fatalf("send after detach = %v, want ErrSessionClosed", err)
	}
}

func TestAttachTearsDownWhenOutputEnds(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	client, err := Attach(test.Context(t), testConfig(), console.New(), WithStarter(&fakeStarter{handle: handle}))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	// Simulate the subprocess exiting out from under us.
	_ = handle.Kill()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for teardown after process exit")
	}
	if err := client.Send("continue"); !errors.Is(err, annotate.ErrSessionClosed) {
		t.Fatalf("send after exit = %v, want ErrSessionClosed", err)
	}
}

func TestAttachHonorsViewConfiguration(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Views = map[string]config.ViewConfig{
		"stack":       {Enabled: false},
		"breakpoints": {Enabled: true, Command: "server info breakpoints full"},
	}

	handle := newFakeHandle()
	front := console.New()
	front.OpenView(views.Breakpoints)
	front.OpenView(views.Stack)

	client, err := Attach(test.Context(t), cfg, front, WithStarter(&fakeStarter{handle: handle}))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer func() { _ = client.Detach() }()

	go func() {
		_, _ = io.WriteString(handle.stdoutW,
			"\x1a\x1aprompt\n\x1a\x1aframes-invalid\n\x1a\x1abreakpoints-invalid\n")
	}()

	waitFor(t, "breakpoint refresh command", func() bool {
		return strings.Contains(handle.stdin.String(), "server info breakpoints full\n")
	})
	if got := handle.stdin.String(); strings.Contains(got, "backtrace") {
		t.Fatalf("disabled stack view was refreshed: %q", got)
	}
}

func TestAttachPropagatesStartFailure(t *testing.T) {
	t.Parallel()

	startErr := errors.New("no such binary")
	_, err := Attach(test.Context(t), testConfig(), console.New(),
		WithStarter(&fakeStarter{err: startErr}))
	if !errors.Is(err, startErr) {
		t.Fatalf("attach error = %v, want wrapped start failure", err)
	}
}

func TestAttachRequiresConfigAndFrontend(t *testing.T) {
	t.Parallel()

	if _, err := Attach(test.Context(t), nil, console.New()); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := Attach(test.Context(t), testConfig(), nil); err == nil {
		t.Fatal("expected error for nil frontend")
	}
}

func TestUnattachedClientOperations(t *testing.T) {
	t.Parallel()

	var client *Client
	if err := client.Send("step"); err == nil {
		t.Fatal("expected error sending on a nil client")
	}
	if err := client.Detach(); err == nil {
		t.Fatal("expected error detaching a nil client")
	}
	if client.Session() != nil {
		t.Fatal("nil client should expose no session")
	}
}
