package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joltkit/jolt/internal/telemetry/invariants"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is one step of the session lifecycle.
type State string

const (
	Closed  State = "closed"
	Opening State = "opening"
	Open    State = "open"
	Closing State = "closing"
)

const defaultHistoryLimit = 64

var allowedTransitions = map[State]map[State]struct{}{
	Closed: {
		Opening: {},
	},
	Opening: {
		Open:   {},
		Closed: {},
	},
	Open: {
		Closing: {},
	},
	Closing: {
		Closed: {},
	},
}

// TransitionRecord stores transition metadata for local history.
type TransitionRecord struct {
	SessionID string
	FromState State
	ToState   State
	Reason    string
	Timestamp time.Time
}

// IllegalTransitionError is returned for a disallowed transition.
type IllegalTransitionError struct {
	FromState State
	ToState   State
	Reason    string
}

func (e *IllegalTransitionError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "illegal transition for session lifecycle"
	}
	return fmt.Sprintf("cannot transition session from %q to %q: %s", e.FromState, e.ToState, reason)
}

// Is enables errors.Is checks for illegal transition failures.
func (e *IllegalTransitionError) Is(target error) bool {
	_, ok := target.(*IllegalTransitionError)
	return ok
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithTracer overrides the tracer used for transition spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Lifecycle) {
		l.tracer = tracer
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// WithHistoryLimit bounds the number of retained transition records.
func WithHistoryLimit(limit int) Option {
	return func(l *Lifecycle) {
		if limit > 0 {
			l.historyLimit = limit
		}
	}
}

// Lifecycle is the session state machine. It starts Closed and is not safe
// for concurrent use; its owner serializes access.
type Lifecycle struct {
	current      State
	tracer       trace.Tracer
	now          func() time.Time
	history      []TransitionRecord
	historyLimit int
}

// NewLifecycle builds a lifecycle in the Closed state.
func NewLifecycle(options ...Option) *Lifecycle {
	lifecycle := &Lifecycle{
		current:      Closed,
		now:          time.Now,
		history:      []TransitionRecord{},
		historyLimit: defaultHistoryLimit,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(lifecycle)
	}
	if lifecycle.tracer == nil {
		lifecycle.tracer = otel.Tracer("jolt/state")
	}
	return lifecycle
}

// Current returns the current state.
func (l *Lifecycle) Current() State {
	return l.current
}

// Active reports whether a session is open or opening.
func (l *Lifecycle) Active() bool {
	return l.current == Open || l.current == Opening
}

// Transition moves the lifecycle from its current state to toState.
func (l *Lifecycle) Transition(ctx context.Context, toState State, sessionID, reason string) (TransitionRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fromState := l.current
	normalizedReason := strings.TrimSpace(reason)

	ctx, span := l.tracer.Start(ctx, "state.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("from_state", string(fromState)),
		attribute.String("to_state", string(toState)),
		attribute.String("reason", normalizedReason),
	)

	if !isAllowed(fromState, toState) {
		invariants.CheckStateTransitionLegal(ctx, "state.lifecycle.transition", string(fromState), string(toState), false)
		err := &IllegalTransitionError{FromState: fromState, ToState: toState}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TransitionRecord{}, err
	}

	record := TransitionRecord{
		SessionID: sessionID,
		FromState: fromState,
		ToState:   toState,
		Reason:    normalizedReason,
		Timestamp: l.now().UTC(),
	}
	l.current = toState
	l.history = append(l.history, record)
	if overflow := len(l.history) - l.historyLimit; overflow > 0 {
		l.history = append([]TransitionRecord(nil), l.history[overflow:]...)
	}
	span.SetStatus(codes.Ok, "state transition applied")
	return record, nil
}

// History returns the retained transition records, oldest first.
func (l *Lifecycle) History() []TransitionRecord {
	out := make([]TransitionRecord, len(l.history))
	copy(out, l.history)
	return out
}

func isAllowed(fromState, toState State) bool {
	nextStates, ok := allowedTransitions[fromState]
	if !ok {
		return false
	}
	_, ok = nextStates[toState]
	return ok
}
