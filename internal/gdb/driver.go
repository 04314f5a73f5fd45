// Package gdb attaches the annotation engine to a real debugger subprocess:
// it spawns gdb with annotations enabled, owns the single goroutine that
// feeds the engine from the subprocess's stdout, and tears the session down
// when the process exits.
package gdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gdbdeck/gdx/internal/annotate"
	"github.com/gdbdeck/gdx/internal/config"
	"github.com/gdbdeck/gdx/internal/events"
	"github.com/gdbdeck/gdx/internal/views"
)

// ProcessHandle is a running debugger subprocess.
type ProcessHandle interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Stderr() io.Reader
	PID() int
	Wait() error
	Kill() error
}

// Starter launches the debugger subprocess.
type Starter interface {
	Start(ctx context.Context, path string, args ...string) (ProcessHandle, error)
}

type execStarter struct{}

type execHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (execStarter) Start(ctx context.Context, path string, args ...string) (ProcessHandle, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	return &execHandle{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (h *execHandle) Stdin() io.Writer  { return h.stdin }
func (h *execHandle) Stdout() io.Reader { return h.stdout }
func (h *execHandle) Stderr() io.Reader { return h.stderr }

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Wait() error {
	return h.cmd.Wait()
}

func (h *execHandle) Kill() error {
	_ = h.stdin.Close()
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// Option customizes client construction.
type Option func(*Client)

// WithStarter injects an alternative subprocess starter.
func WithStarter(starter Starter) Option {
	return func(c *Client) {
		if starter != nil {
			c.starter = starter
		}
	}
}

// WithLogger configures the structured logger used by the driver and engine.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBus configures the event bus lifecycle events are published to.
func WithBus(bus annotate.EventBus) Option {
	return func(c *Client) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// Client owns one attached debugger subprocess and its protocol session.
type Client struct {
	starter Starter
	logger  *log.Logger
	bus     annotate.EventBus

	proc    ProcessHandle
	session *annotate.Session
	done    chan struct{}
}

// Attach spawns the configured debugger, creates its protocol session,
// registers the enabled default views, and starts the read loop that feeds
// the engine.
func Attach(ctx context.Context, cfg *config.Config, front annotate.Frontend, options ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if front == nil {
		return nil, errors.New("frontend is required")
	}

	client := &Client{
		starter: execStarter{},
		logger:  log.New(io.Discard),
		bus:     noopBus{},
		done:    make(chan struct{}),
	}
	for _, option := range options {
		option(client)
	}

	spanCtx, span := otel.Tracer("gdx/gdb").Start(ctx, "gdb.attach")
	span.SetAttributes(
		attribute.String("gdb_path", cfg.GDBPath),
		attribute.String("gdb_args", strings.Join(cfg.GDBArgs, " ")),
	)
	defer span.End()

	proc, err := client.starter.Start(spanCtx, cfg.GDBPath, cfg.GDBArgs...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("attach debugger: %w", err)
	}
	client.proc = proc

	sessionID := fmt.Sprintf("gdx-%d", proc.PID())
	session, err := annotate.NewSession(
		proc.Stdin(),
		front,
		annotate.WithID(sessionID),
		annotate.WithLogger(client.logger),
		annotate.WithBus(client.bus),
	)
	if err != nil {
		_ = proc.Kill()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create session: %w", err)
	}
	client.session = session

	if err := registerViews(session, cfg); err != nil {
		_ = proc.Kill()
		session.Teardown()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	client.bus.Publish(events.Event{
		Type:      events.EventTypeSessionAttached,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Payload:   cfg.GDBPath,
		Severity:  events.SeverityInfo,
	})
	client.logger.Info("debugger attached", "session_id", sessionID, "pid", proc.PID())

	go client.readLoop(cfg.ReadBufferBytes)
	go client.stderrLoop()
	go client.waitLoop()

	return client, nil
}

// Send submits a user-typed command to the debugger.
func (c *Client) Send(text string) error {
	if c == nil || c.session == nil {
		return errors.New("client is not attached")
	}
	return c.session.EnqueueHigh(text)
}

// Session exposes the underlying protocol session.
func (c *Client) Session() *annotate.Session {
	if c == nil {
		return nil
	}
	return c.session
}

// Done is closed once the subprocess has exited and the session is torn
// down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Detach kills the subprocess and tears the session down, discarding all
// queued commands and pending view refreshes.
func (c *Client) Detach() error {
	if c == nil || c.proc == nil {
		return errors.New("client is not attached")
	}
	err := c.proc.Kill()
	c.session.Teardown()
	if err != nil {
		return fmt.Errorf("kill debugger: %w", err)
	}
	return nil
}

// readLoop is the session's single producer: it drains the subprocess's
// stdout and processes each chunk to completion before reading the next.
func (c *Client) readLoop(bufferBytes int) {
	if bufferBytes <= 0 {
		bufferBytes = 4096
	}
	buf := make([]byte, bufferBytes)
	stdout := c.proc.Stdout()
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if feedErr := c.session.Feed(buf[:n]); feedErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("debugger output read failed", "session_id", c.session.ID(), "err", err)
			}
			c.session.Teardown()
			return
		}
	}
}

func (c *Client) stderrLoop() {
	scanner := bufio.NewScanner(c.proc.Stderr())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.logger.Warn("gdb stderr", "session_id", c.session.ID(), "line", line)
	}
}

func (c *Client) waitLoop() {
	err := c.proc.Wait()
	if err != nil {
		c.logger.Info("debugger exited", "session_id", c.session.ID(), "err", err)
	} else {
		c.logger.Info("debugger exited", "session_id", c.session.ID())
	}
	c.session.Teardown()
	close(c.done)
}

func registerViews(session *annotate.Session, cfg *config.Config) error {
	for _, desc := range views.Defaults(cfg.CommandPrefix) {
		if !cfg.ViewEnabled(string(desc.ID)) {
			continue
		}
		if override := cfg.ViewCommand(string(desc.ID)); override != "" {
			desc.Command = override
		}
		if err := session.RegisterView(desc); err != nil {
			return fmt.Errorf("register view %s: %w", desc.ID, err)
		}
	}
	return nil
}

type noopBus struct{}

func (noopBus) Publish(events.Event) {}
