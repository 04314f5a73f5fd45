package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gdbdeck/gdx/internal/annotate"
	"github.com/gdbdeck/gdx/internal/config"
	"github.com/gdbdeck/gdx/internal/console"
	"github.com/gdbdeck/gdx/internal/events"
	"github.com/gdbdeck/gdx/internal/gdb"
	"github.com/gdbdeck/gdx/internal/logging"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(ctx, logging.WithGDBPath(cfg.GDBPath))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	cmd := newRootCommand(ctx, cfg, logger)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return err
	}

	return nil
}

func newRootCommand(ctx context.Context, cfg *config.Config, logger *logging.RuntimeLogger) *cobra.Command {
	root := &cobra.Command{
		Use:           "gdx",
		Short:         "Annotation-protocol debugger front end",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newAttachCommand(cfg, logger),
		newDoctorCommand(cfg, logger),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil || logger.Logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.Logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	_ = ctx
	return root
}

func newAttachCommand(cfg *config.Config, logger *logging.RuntimeLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "attach [-- gdb-args...]",
		Short: "Attach to the debugger and run an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context(), cfg, logger, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runAttach(
	ctx context.Context,
	cfg *config.Config,
	logger *logging.RuntimeLogger,
	extraArgs []string,
	input io.Reader,
	output io.Writer,
) error {
	if len(extraArgs) > 0 {
		cfg.GDBArgs = append(append([]string(nil), cfg.GDBArgs...), extraArgs...)
	}

	front := console.New(
		console.WithTranscriptWriter(output),
		console.WithInferiorWriter(output),
	)
	bus := events.New()

	client, err := gdb.Attach(ctx, cfg, front, gdb.WithLogger(logger.Logger), gdb.WithBus(bus))
	if err != nil {
		return err
	}
	// Subsequent records carry the session id minted by the driver.
	logger.WithSessionID(client.Session().ID())
	logger.Logger.Info("interactive session started", "log_file", logger.Path())
	defer func() {
		if detachErr := client.Detach(); detachErr != nil {
			logger.Logger.Warn("detach failed", "err", detachErr)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := client.Send(line); err != nil {
				if errors.Is(err, annotate.ErrSessionClosed) {
					return nil
				}
				return fmt.Errorf("send command: %w", err)
			}
		}
	}
}

func newDoctorCommand(cfg *config.Config, logger *logging.RuntimeLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured debugger is usable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			availability, err := gdb.Probe(cmd.Context(), cfg.GDBPath)
			if err != nil {
				return err
			}
			logger.Logger.Info("debugger available", "path", availability.Path, "version", availability.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", availability.Path, availability.Version)
			return nil
		},
	}
}
