// Package session owns the single live play session: it opens, pings and
// closes it against the platform API and keeps it alive in the background.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joltkit/jolt/internal/api"
	"github.com/joltkit/jolt/internal/events"
	"github.com/joltkit/jolt/internal/logging"
	"github.com/joltkit/jolt/internal/state"
	"github.com/joltkit/jolt/internal/telemetry/invariants"
	"github.com/joltkit/jolt/internal/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenOptions selects the credentials for a new session. Empty fields fall
// back to the configured settings.
type OpenOptions struct {
	GameID    string
	Username  string
	UserToken string
	// Status defaults to StatusActive.
	Status Status
	// Automated starts the background keepalive once the session is open.
	Automated bool
}

// Info describes the open session.
type Info struct {
	ID        string
	GameID    string
	Username  string
	Status    Status
	Automated bool
	OpenedAt  time.Time
}

type handle struct {
	id        string
	gameID    string
	username  string
	userToken string
	status    Status
	automated bool
	openedAt  time.Time
}

func (h handle) params() url.Values {
	return url.Values{
		api.ParamGameID:    []string{h.gameID},
		api.ParamUsername:  []string{h.username},
		api.ParamUserToken: []string{h.userToken},
		api.ParamStatus:    []string{h.status.String()},
	}
}

func (h handle) info() Info {
	return Info{
		ID:        h.id,
		GameID:    h.gameID,
		Username:  h.username,
		Status:    h.status,
		Automated: h.automated,
		OpenedAt:  h.openedAt,
	}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPublisher publishes lifecycle and keepalive events to publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(m *Manager) {
		m.publisher = publisher
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer overrides the tracer for session spans and lifecycle transitions.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// WithKeepaliveInterval overrides the background ping interval.
func WithKeepaliveInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithMaxPingFailures closes the session after n consecutive failed
// background pings. Zero disables the policy.
func WithMaxPingFailures(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxPingFailures = n
		}
	}
}

// WithTicker overrides the keepalive ticker source.
func WithTicker(factory TickerFactory) Option {
	return func(m *Manager) {
		if factory != nil {
			m.newTicker = factory
		}
	}
}

// WithIDGenerator overrides the session instance id source.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// Manager is the session lifecycle owner. Construct one per process.
type Manager struct {
	client          *api.Client
	publisher       events.Publisher
	logger          *log.Logger
	tracer          trace.Tracer
	interval        time.Duration
	maxPingFailures int
	newTicker       TickerFactory
	newID           func() string
	now             func() time.Time

	// opMu serializes Open, Close and policy-driven expiry.
	opMu sync.Mutex

	// mu guards lifecycle, handle and pingFailures. It is never held across
	// a network call.
	mu           sync.Mutex
	lifecycle    *state.Lifecycle
	handle       *handle
	pingFailures int

	keepalive *Keepalive
}

// NewManager builds a Manager in the Closed state.
func NewManager(client *api.Client, options ...Option) (*Manager, error) {
	if client == nil {
		return nil, errors.New("api client is required")
	}

	m := &Manager{
		client:    client,
		logger:    logging.Discard(),
		tracer:    otel.Tracer("jolt/session"),
		interval:  DefaultKeepaliveInterval,
		newTicker: NewTicker,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(m)
	}
	m.lifecycle = state.NewLifecycle(state.WithTracer(m.tracer), state.WithClock(m.now))
	m.keepalive = NewKeepalive(
		m.interval,
		func() bool { return m.State() == state.Open },
		func(ctx context.Context) error {
			_, err := m.ping(ctx, true)
			return err
		},
		WithTickerFactory(m.newTicker),
		WithPingObserver(m.observePing),
	)
	return m, nil
}

// Open starts a new session. An already open session is closed first. On any
// failure the lifecycle returns to Closed and the error is returned.
func (m *Manager) Open(ctx context.Context, opts OpenOptions) (wire.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	ctx, span := m.tracer.Start(ctx, "session.open")
	defer span.End()

	next, err := m.resolveHandle(opts)
	if err != nil {
		return wire.Response{}, failSpan(span, fmt.Errorf("open session: %w", err))
	}
	span.SetAttributes(
		attribute.String("session_id", next.id),
		attribute.Bool("automated", next.automated),
	)

	if m.State() == state.Open {
		if err := m.closeLocked(ctx, "superseded by a new open"); err != nil {
			return wire.Response{}, failSpan(span, fmt.Errorf("close previous session: %w", err))
		}
	}

	if err := m.transition(ctx, state.Opening, next.id, "open requested", nil); err != nil {
		return wire.Response{}, failSpan(span, fmt.Errorf("open session: %w", err))
	}

	response, err := m.client.Keypair(ctx, api.PathSessionOpen, next.params())
	if err != nil {
		if transitionErr := m.transition(ctx, state.Closed, next.id, "open failed", nil); transitionErr != nil {
			err = errors.Join(err, transitionErr)
		}
		m.logger.Warn("session open failed", "session_id", next.id, "error", err)
		return wire.Response{}, failSpan(span, fmt.Errorf("open session: %w", err))
	}

	next.openedAt = m.now().UTC()
	if err := m.transition(ctx, state.Open, next.id, "open succeeded", func() {
		m.handle = &next
		m.pingFailures = 0
	}); err != nil {
		return wire.Response{}, failSpan(span, fmt.Errorf("open session: %w", err))
	}

	if next.automated {
		m.keepalive.Start(context.Background())
	}
	m.logger.Info("session opened", "session_id", next.id, "username", next.username, "automated", next.automated)
	span.SetStatus(codes.Ok, "session opened")
	return response, nil
}

// Ping asserts the open session is still active, reporting the current status.
// A failed ping leaves the session open.
func (m *Manager) Ping(ctx context.Context) (wire.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return m.ping(ctx, false)
}

// Close stops the keepalive, sends a best-effort close request and always
// leaves the lifecycle Closed. Only a missing session is reported as an error.
func (m *Manager) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.closeLocked(ctx, "close requested")
}

// ChangeStatus sets the status sent with the next ping.
func (m *Manager) ChangeStatus(status Status) error {
	if !status.Valid() {
		return fmt.Errorf("change status: unknown session status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.lifecycle.Current()
	if current != state.Open || m.handle == nil {
		return &StateError{Op: "change status", State: current}
	}
	m.handle.status = status
	m.logger.Debug("session status changed", "session_id", m.handle.id, "status", status)
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() state.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifecycle.Current()
}

// Info describes the open session. ok is false when no session is open.
func (m *Manager) Info() (info Info, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return Info{}, false
	}
	return m.handle.info(), true
}

// History returns the retained lifecycle transitions, oldest first.
func (m *Manager) History() []state.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifecycle.History()
}

func (m *Manager) resolveHandle(opts OpenOptions) (handle, error) {
	settings := m.client.Settings()
	next := handle{
		gameID:    strings.TrimSpace(opts.GameID),
		username:  strings.TrimSpace(opts.Username),
		userToken: strings.TrimSpace(opts.UserToken),
		status:    opts.Status,
		automated: opts.Automated,
	}

	var err error
	if next.gameID == "" {
		if next.gameID, err = settings.GameID(); err != nil {
			return handle{}, err
		}
	}
	if next.username == "" {
		if next.username, err = settings.Username(); err != nil {
			return handle{}, err
		}
	}
	if next.userToken == "" {
		if next.userToken, err = settings.UserToken(); err != nil {
			return handle{}, err
		}
	}
	if next.status == "" {
		next.status = StatusActive
	}
	if !next.status.Valid() {
		return handle{}, fmt.Errorf("unknown session status %q", next.status)
	}
	next.id = m.newID()
	return next, nil
}

func (m *Manager) ping(ctx context.Context, automated bool) (wire.Response, error) {
	m.mu.Lock()
	current := m.lifecycle.Current()
	if current != state.Open || m.handle == nil {
		m.mu.Unlock()
		return wire.Response{}, &StateError{Op: "ping", State: current}
	}
	active := *m.handle
	m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "session.ping", trace.WithAttributes(
		attribute.String("session_id", active.id),
		attribute.String("status", active.status.String()),
		attribute.Bool("automated", automated),
	))
	defer span.End()

	invariants.CheckNoPingAfterClose(ctx, "session.manager.ping", active.id, m.State() == state.Closing)
	response, err := m.client.Keypair(ctx, api.PathSessionPing, active.params())
	if err != nil {
		return wire.Response{}, failSpan(span, fmt.Errorf("ping session: %w", err))
	}
	span.SetStatus(codes.Ok, "ping acknowledged")
	return response, nil
}

// closeLocked requires opMu to be held.
func (m *Manager) closeLocked(ctx context.Context, reason string) error {
	ctx, span := m.tracer.Start(ctx, "session.close")
	defer span.End()

	m.mu.Lock()
	current := m.lifecycle.Current()
	if current != state.Open || m.handle == nil {
		m.mu.Unlock()
		return failSpan(span, &StateError{Op: "close", State: current})
	}
	closing := *m.handle
	record, err := m.lifecycle.Transition(ctx, state.Closing, closing.id, reason)
	m.mu.Unlock()
	if err != nil {
		return failSpan(span, err)
	}
	m.publishTransition(record)
	span.SetAttributes(attribute.String("session_id", closing.id), attribute.String("reason", reason))

	m.keepalive.Stop()

	if _, err := m.client.Keypair(ctx, api.PathSessionClose, closing.params()); err != nil {
		span.RecordError(err)
		m.logger.Warn("session close request failed", "session_id", closing.id, "error", err)
	}

	if err := m.transition(ctx, state.Closed, closing.id, reason, func() {
		m.handle = nil
		m.pingFailures = 0
	}); err != nil {
		return failSpan(span, err)
	}
	m.logger.Info("session closed", "session_id", closing.id, "reason", reason)
	span.SetStatus(codes.Ok, "session closed")
	return nil
}

// transition applies one lifecycle step under mu, running apply in the same
// critical section when the step is legal.
func (m *Manager) transition(ctx context.Context, to state.State, sessionID, reason string, apply func()) error {
	m.mu.Lock()
	record, err := m.lifecycle.Transition(ctx, to, sessionID, reason)
	if err == nil && apply != nil {
		apply()
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.publishTransition(record)
	return nil
}

func (m *Manager) observePing(err error) {
	m.mu.Lock()
	sessionID := ""
	if m.handle != nil {
		sessionID = m.handle.id
	}
	if err == nil {
		m.pingFailures = 0
	} else {
		m.pingFailures++
	}
	failures := m.pingFailures
	m.mu.Unlock()

	if err == nil {
		m.logger.Debug("keepalive ping", "session_id", sessionID)
		m.publish(events.Event{
			Type:      events.EventTypeKeepalivePing,
			SessionID: sessionID,
			Severity:  events.SeverityInfo,
		})
		return
	}

	m.logger.Warn("keepalive ping failed", "session_id", sessionID, "consecutive_failures", failures, "error", err)
	m.publish(events.Event{
		Type:      events.EventTypeKeepaliveFailed,
		SessionID: sessionID,
		Payload: map[string]string{
			"error":                err.Error(),
			"consecutive_failures": strconv.Itoa(failures),
		},
		Severity: events.SeverityWarn,
	})

	if m.maxPingFailures > 0 && failures >= m.maxPingFailures {
		// The keepalive loop is waiting on this call; closing stops that loop,
		// so expiry must run elsewhere.
		go m.expire(sessionID, failures)
	}
}

func (m *Manager) expire(sessionID string, failures int) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	stillOpen := m.handle != nil && m.handle.id == sessionID && m.lifecycle.Current() == state.Open
	m.mu.Unlock()
	if !stillOpen {
		return
	}

	ctx := context.Background()
	if err := m.closeLocked(ctx, "ping failure limit reached"); err != nil {
		m.logger.Warn("expire session", "session_id", sessionID, "error", err)
		return
	}
	m.logger.Warn("session expired", "session_id", sessionID, "consecutive_failures", failures)
	m.publish(events.Event{
		Type:      events.EventTypeSessionExpired,
		SessionID: sessionID,
		Payload: map[string]string{
			"consecutive_failures": strconv.Itoa(failures),
		},
		Severity: events.SeverityError,
	})
}

func (m *Manager) publishTransition(record state.TransitionRecord) {
	m.logger.Debug(
		"session transition",
		"session_id", record.SessionID,
		"from", record.FromState,
		"to", record.ToState,
		"reason", record.Reason,
	)
	m.publish(events.Event{
		Type:      events.EventTypeSessionTransition,
		Timestamp: record.Timestamp,
		SessionID: record.SessionID,
		Payload:   record,
		Severity:  events.SeverityInfo,
	})
}

func (m *Manager) publish(event events.Event) {
	if m.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}
	m.publisher.Publish(event)
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
