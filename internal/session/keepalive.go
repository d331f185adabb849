package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joltkit/jolt/internal/telemetry/invariants"
)

// DefaultKeepaliveInterval keeps a session inside the platform's 120 second
// expiry window with a 2x margin.
const DefaultKeepaliveInterval = 60 * time.Second

// Ticker is the subset of *time.Ticker the keepalive loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every interval.
type TickerFactory func(interval time.Duration) Ticker

// NewTicker wraps time.NewTicker.
func NewTicker(interval time.Duration) Ticker {
	return timeTicker{ticker: time.NewTicker(interval)}
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t timeTicker) Stop()               { t.ticker.Stop() }

// KeepaliveOption customizes a Keepalive.
type KeepaliveOption func(*Keepalive)

// WithTickerFactory overrides the ticker source.
func WithTickerFactory(factory TickerFactory) KeepaliveOption {
	return func(k *Keepalive) {
		if factory != nil {
			k.newTicker = factory
		}
	}
}

// WithPingObserver receives the outcome of every ping the loop issues.
// err is nil on success. Skipped ticks are not reported.
func WithPingObserver(observer func(err error)) KeepaliveOption {
	return func(k *Keepalive) {
		k.observe = observer
	}
}

// Keepalive pings on a fixed interval while isOpen holds. At most one loop
// runs at a time.
type Keepalive struct {
	interval  time.Duration
	isOpen    func() bool
	ping      func(ctx context.Context) error
	observe   func(err error)
	newTicker TickerFactory

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	loops  atomic.Int32
}

// NewKeepalive builds a stopped Keepalive. A non-positive interval uses
// DefaultKeepaliveInterval.
func NewKeepalive(interval time.Duration, isOpen func() bool, ping func(ctx context.Context) error, options ...KeepaliveOption) *Keepalive {
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	keepalive := &Keepalive{
		interval:  interval,
		isOpen:    isOpen,
		ping:      ping,
		newTicker: NewTicker,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(keepalive)
	}
	return keepalive
}

// Start stops any running loop, then starts a new one bound to ctx.
func (k *Keepalive) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := k.newTicker(k.interval)
	k.cancel = cancel
	k.done = done
	k.loops.Add(1)
	invariants.CheckSingleActiveSession(ctx, "session.keepalive.start", int(k.loops.Load()))

	go k.run(loopCtx, ticker, done)
}

// Stop cancels the loop and waits for it to exit. Calling Stop on a stopped
// Keepalive is a no-op.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
}

// Running reports whether a loop is active.
func (k *Keepalive) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.done != nil
}

func (k *Keepalive) stopLocked() {
	if k.cancel == nil {
		return
	}
	k.cancel()
	<-k.done
	k.cancel = nil
	k.done = nil
}

func (k *Keepalive) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer k.loops.Add(-1)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			k.tick(ctx)
		}
	}
}

func (k *Keepalive) tick(ctx context.Context) {
	if k.isOpen != nil && !k.isOpen() {
		return
	}
	if k.ping == nil {
		return
	}
	err := k.ping(ctx)
	if errors.Is(err, ErrNoActiveSession) || ctx.Err() != nil {
		return
	}
	if k.observe != nil {
		k.observe(err)
	}
}
