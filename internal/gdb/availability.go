package gdb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Availability captures whether the configured debugger binary is usable.
type Availability struct {
	Path    string
	Version string
}

// Probe validates that the configured debugger exists on PATH and reports
// the first line of its --version output.
func Probe(ctx context.Context, gdbPath string) (Availability, error) {
	return probe(ctx, gdbPath, exec.LookPath, runVersion)
}

func probe(
	ctx context.Context,
	gdbPath string,
	lookPath func(file string) (string, error),
	version func(ctx context.Context, path string) (string, error),
) (Availability, error) {
	if lookPath == nil || version == nil {
		return Availability{}, errors.New("probe dependencies are required")
	}
	gdbPath = strings.TrimSpace(gdbPath)
	if gdbPath == "" {
		return Availability{}, errors.New("gdb path must not be empty")
	}

	spanCtx, span := otel.Tracer("gdx/gdb").Start(ctx, "gdb.probe",
		trace.WithAttributes(attribute.String("gdb_path", gdbPath)))
	defer span.End()

	resolved, err := lookPath(gdbPath)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Availability{}, fmt.Errorf("locate debugger %q: %w", gdbPath, err)
	}

	versionLine, err := version(spanCtx, resolved)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Availability{Path: resolved}, fmt.Errorf("query debugger version: %w", err)
	}

	return Availability{Path: resolved, Version: versionLine}, nil
}

func runVersion(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, path, "--version")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("run %s --version: %w", path, err)
	}
	firstLine := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if firstLine == "" {
		return "", errors.New("empty version output")
	}
	return firstLine, nil
}
