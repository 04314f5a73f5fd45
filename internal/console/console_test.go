package console

import (
	"bytes"
	"testing"

	"github.com/gdbdeck/gdx/internal/views"
)

func TestAppendMirrorsToWriters(t *testing.T) {
	t.Parallel()

	var transcript, inferior bytes.Buffer
	console := New(WithTranscriptWriter(&transcript), WithInferiorWriter(&inferior))

	console.AppendTranscript("Breakpoint 1, main\n")
	console.AppendInferiorIO("inferior output\n")

	if got := console.Transcript(); got != "Breakpoint 1, main\n" {
		t.Fatalf("transcript = %q", got)
	}
	if got := transcript.String(); got != "Breakpoint 1, main\n" {
		t.Fatalf("mirrored transcript = %q", got)
	}
	if got := console.InferiorOutput(); got != "inferior output\n" {
		t.Fatalf("inferior = %q", got)
	}
	if got := inferior.String(); got != "inferior output\n" {
		t.Fatalf("mirrored inferior = %q", got)
	}
}

func TestViewLifecycleControlsDemand(t *testing.T) {
	t.Parallel()

	console := New()

	if console.BufferExists(views.Stack) {
		t.Fatal("view buffer exists before OpenView")
	}

	console.OpenView(views.Stack)
	if !console.BufferExists(views.Stack) {
		t.Fatal("view buffer missing after OpenView")
	}

	console.ReplaceBufferContents(views.Stack, "#0 main () at demo.c:4\n")
	console.NotifyRefreshComplete(views.Stack)

	contents, open := console.ViewContents(views.Stack)
	if !open {
		t.Fatal("view closed unexpectedly")
	}
	if contents != "#0 main () at demo.c:4\n" {
		t.Fatalf("view contents = %q", contents)
	}
	if got := console.RefreshCount(views.Stack); got != 1 {
		t.Fatalf("refresh count = %d, want 1", got)
	}

	console.CloseView(views.Stack)
	if console.BufferExists(views.Stack) {
		t.Fatal("view buffer exists after CloseView")
	}
}

func TestReplaceBufferContentsIgnoresClosedView(t *testing.T) {
	t.Parallel()

	console := New()
	console.ReplaceBufferContents(views.Locals, "stale payload\n")

	if _, open := console.ViewContents(views.Locals); open {
		t.Fatal("replace must not resurrect a closed view")
	}
}

func TestOpenViewPreservesExistingContents(t *testing.T) {
	t.Parallel()

	console := New()
	console.OpenView(views.Registers)
	console.ReplaceBufferContents(views.Registers, "rax 0x0\n")
	console.OpenView(views.Registers)

	contents, _ := console.ViewContents(views.Registers)
	if contents != "rax 0x0\n" {
		t.Fatalf("reopening an open view clobbered contents: %q", contents)
	}
}

func TestShowFrameCountsAndRunsHook(t *testing.T) {
	t.Parallel()

	hookCalls := 0
	console := New(WithFrameHook(func() { hookCalls++ }))

	console.ShowFrame()
	console.ShowFrame()

	if got := console.FrameRequests(); got != 2 {
		t.Fatalf("frame requests = %d, want 2", got)
	}
	if hookCalls != 2 {
		t.Fatalf("frame hook calls = %d, want 2", hookCalls)
	}
}
