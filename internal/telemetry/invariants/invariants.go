package invariants

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InvariantSingleActiveSession requires at most one open or opening session.
	InvariantSingleActiveSession = "single_active_session"
	// InvariantStateTransitionLegal requires lifecycle transitions to follow the session state machine.
	InvariantStateTransitionLegal = "state_transition_legal"
	// InvariantNoPingAfterClose requires keepalive pings to stop once close begins.
	InvariantNoPingAfterClose = "no_ping_after_close"
)

const (
	// SeverityWarn is used for non-fatal invariant violations.
	SeverityWarn = "warn"
	// SeverityError is used for fatal invariant violations.
	SeverityError = "error"
)

var invariantChecksEnabled atomic.Bool

func init() {
	invariantChecksEnabled.Store(true)
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
	invariantChecksEnabled.Store(enabled)
}

// Enabled reports whether invariant checks are currently enabled.
func Enabled() bool {
	return invariantChecksEnabled.Load()
}

// InvariantViolation emits an invariant.violation event on the active span.
// Without an active span a short synthetic span carries the event.
func InvariantViolation(
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

	attrs := []attribute.KeyValue{
		attribute.String("invariant_name", invariantName),
		attribute.String("severity", normalizeSeverity(severity)),
		attribute.String("what_invariant", strings.TrimSpace(details.WhatInvariant)),
		attribute.String("where_detected", strings.TrimSpace(details.WhereDetected)),
		attribute.String("why_violated", strings.TrimSpace(details.WhyViolated)),
	}
	keys := make([]string, 0, len(details.Additional))
	for key := range details.Additional {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if value := strings.TrimSpace(details.Additional[key]); value != "" {
			attrs = append(attrs, attribute.String("context."+key, value))
		}
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
		return
	}

	_, temporarySpan := otel.Tracer("jolt/invariants").Start(ctx, "invariant.violation")
	defer temporarySpan.End()
	temporarySpan.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
}

// CheckSingleActiveSession validates the single_active_session invariant.
func CheckSingleActiveSession(ctx context.Context, whereDetected string, activeKeepalives int) bool {
	if activeKeepalives <= 1 {
		return true
	}
	InvariantViolation(ctx, InvariantSingleActiveSession, SeverityError, ViolationDetails{
		WhatInvariant: "at most one session keepalive runs at a time",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("active_keepalives=%d", activeKeepalives),
		Additional: map[string]string{
			"active_keepalives": strconv.Itoa(activeKeepalives),
		},
	})
	return false
}

// CheckStateTransitionLegal validates the state_transition_legal invariant.
func CheckStateTransitionLegal(ctx context.Context, whereDetected, fromState, toState string, legal bool) bool {
	if legal {
		return true
	}
	InvariantViolation(ctx, InvariantStateTransitionLegal, SeverityError, ViolationDetails{
		WhatInvariant: "session lifecycle transition is legal",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("illegal transition from=%s to=%s", fromState, toState),
		Additional: map[string]string{
			"from_state": strings.TrimSpace(fromState),
			"to_state":   strings.TrimSpace(toState),
		},
	})
	return false
}

// CheckNoPingAfterClose validates the no_ping_after_close invariant.
func CheckNoPingAfterClose(ctx context.Context, whereDetected, sessionID string, closing bool) bool {
	if !closing {
		return true
	}
	InvariantViolation(ctx, InvariantNoPingAfterClose, SeverityWarn, ViolationDetails{
		WhatInvariant: "no keepalive ping fires after close begins",
		WhereDetected: whereDetected,
		WhyViolated:   "keepalive tick observed a closing session",
		Additional: map[string]string{
			"session_id": sessionID,
		},
	})
	return false
}

func normalizeSeverity(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case SeverityWarn:
		return SeverityWarn
	default:
		return SeverityError
	}
}
