// Package invariants emits telemetry events for violations of the engine's
// internal invariants. A violation is a programming error, not a runtime
// condition; callers decide what to do with the offending session after
// reporting.
package invariants

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// QueueNonEmptyOnDequeue requires dequeue operations to run only after
	// confirming the queue is non-empty.
	QueueNonEmptyOnDequeue = "queue_nonempty_on_dequeue"
	// SingleCommandInFlight requires at most one in-flight command per
	// session.
	SingleCommandInFlight = "single_command_in_flight"
	// SinkTransitionLegal requires sink transitions to follow the output
	// router's state machine.
	SinkTransitionLegal = "sink_transition_legal"
	// PendingTriggerUnique requires at most one outstanding refresh per
	// view.
	PendingTriggerUnique = "pending_trigger_unique"
)

const (
	// SeverityWarn is used for non-fatal invariant violations.
	SeverityWarn = "warn"
	// SeverityError is used for fatal invariant violations.
	SeverityError = "error"
)

var checksEnabled atomic.Bool

func init() {
	checksEnabled.Store(true)
}

// ViolationDetails captures invariant violation context for telemetry events.
type ViolationDetails struct {
	WhatInvariant string
	WhereDetected string
	WhyViolated   string
	Additional    map[string]string
}

// SetEnabled globally enables or disables invariant checks.
func SetEnabled(enabled bool) {
	checksEnabled.Store(enabled)
}

// Enabled reports whether invariant checks are currently enabled.
func Enabled() bool {
	return checksEnabled.Load()
}

// Violation emits an invariant.violation telemetry event on the active span.
// If the context has no active span, a short synthetic span is created for
// observability.
func Violation(
	ctx context.Context,
	invariantName string,
	severity string,
	details ViolationDetails,
) {
	if !Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	invariantName = strings.TrimSpace(invariantName)
	if invariantName == "" {
		invariantName = "unknown_invariant"
	}
	severity = normalizeSeverity(severity)

	attrs := []attribute.KeyValue{
		attribute.String("invariant_name", invariantName),
		attribute.String("severity", severity),
		attribute.String("what_invariant", strings.TrimSpace(details.WhatInvariant)),
		attribute.String("where_detected", strings.TrimSpace(details.WhereDetected)),
		attribute.String("why_violated", strings.TrimSpace(details.WhyViolated)),
	}
	if len(details.Additional) > 0 {
		keys := make([]string, 0, len(details.Additional))
		for key := range details.Additional {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := strings.TrimSpace(details.Additional[key])
			if value == "" {
				continue
			}
			attrs = append(attrs, attribute.String("context."+key, value))
		}
	}

	span := trace.SpanFromContext(ctx)
	if span != nil && span.SpanContext().IsValid() {
		span.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
		return
	}

	_, syntheticSpan := otel.Tracer("gdx/invariants").Start(ctx, "invariant.violation")
	defer syntheticSpan.End()
	syntheticSpan.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
}

// CheckQueueNonEmpty validates the queue_nonempty_on_dequeue invariant.
func CheckQueueNonEmpty(ctx context.Context, whereDetected string, queueLen int, sessionID string) bool {
	if queueLen > 0 {
		return true
	}
	Violation(ctx, QueueNonEmptyOnDequeue, SeverityError, ViolationDetails{
		WhatInvariant: "dequeue runs only on a non-empty queue",
		WhereDetected: whereDetected,
		WhyViolated:   "dequeue invoked on an empty command queue",
		Additional: map[string]string{
			"session_id": sessionID,
		},
	})
	return false
}

// CheckSingleCommandInFlight validates the single_command_in_flight invariant.
func CheckSingleCommandInFlight(ctx context.Context, whereDetected string, inFlight int, sessionID string) bool {
	if inFlight <= 1 {
		return true
	}
	Violation(ctx, SingleCommandInFlight, SeverityError, ViolationDetails{
		WhatInvariant: "at most one command is in flight per session",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("in_flight=%d", inFlight),
		Additional: map[string]string{
			"session_id": sessionID,
		},
	})
	return false
}

// CheckSinkTransition validates the sink_transition_legal invariant.
func CheckSinkTransition(ctx context.Context, whereDetected, fromSink, annotation string, legal bool) bool {
	if legal {
		return true
	}
	Violation(ctx, SinkTransitionLegal, SeverityWarn, ViolationDetails{
		WhatInvariant: "sink transitions follow the output router state machine",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("annotation %q arrived while sink is %s", annotation, fromSink),
		Additional: map[string]string{
			"from_sink":  strings.TrimSpace(fromSink),
			"annotation": strings.TrimSpace(annotation),
		},
	})
	return false
}

func normalizeSeverity(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case SeverityWarn:
		return SeverityWarn
	case SeverityError:
		return SeverityError
	default:
		return SeverityError
	}
}
