package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joltkit/jolt/internal/api"
	"github.com/joltkit/jolt/internal/config"
	"github.com/joltkit/jolt/internal/events"
	"github.com/stretchr/testify/require"
)

const tickTimeout = 2 * time.Second

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(tickTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeClock hands out manually driven tickers and logs their lifecycle.
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
	log     []string
}

type fakeTicker struct {
	clock   *fakeClock
	id      int
	ch      chan time.Time
	stopped bool
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticker := &fakeTicker{clock: c, id: len(c.tickers) + 1, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, ticker)
	c.log = append(c.log, fmt.Sprintf("start %d", ticker.id))
	return ticker
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.clock.log = append(t.clock.log, fmt.Sprintf("stop %d", t.id))
}

// Tick delivers one tick to the newest running ticker. It reports false when
// no ticker is running or nothing received the tick in time.
func (c *fakeClock) Tick() bool {
	c.mu.Lock()
	var target *fakeTicker
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if !c.tickers[i].stopped {
			target = c.tickers[i]
			break
		}
	}
	c.mu.Unlock()
	if target == nil {
		return false
	}

	select {
	case target.ch <- time.Now():
		return true
	case <-time.After(tickTimeout):
		return false
	}
}

func (c *fakeClock) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// callLog is a fake transport answering per endpoint.
type callLog struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]string
	errs      map[string]error
}

func newCallLog() *callLog {
	return &callLog{
		responses: map[string]string{
			api.PathSessionOpen:  "success:true\nstatus:active",
			api.PathSessionPing:  "success:true",
			api.PathSessionClose: "success:true",
		},
		errs: map[string]error{},
	}
}

func (l *callLog) Fetch(_ context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, rawURL)
	for _, path := range []string{api.PathSessionOpen, api.PathSessionPing, api.PathSessionClose} {
		if !strings.HasSuffix(parsed.Path, path) {
			continue
		}
		if err := l.errs[path]; err != nil {
			return "", err
		}
		return l.responses[path], nil
	}
	return "", fmt.Errorf("unexpected request %s", parsed.Path)
}

func (l *callLog) respond(path, body string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses[path] = body
}

func (l *callLog) fail(path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[path] = err
}

// paths returns the endpoint of every request, in order.
func (l *callLog) paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, call := range l.calls {
		parsed, err := url.Parse(call)
		if err != nil {
			continue
		}
		out = append(out, strings.TrimPrefix(parsed.Path, "/v1"))
	}
	return out
}

func (l *callLog) count(path string) int {
	n := 0
	for _, got := range l.paths() {
		if got == path {
			n++
		}
	}
	return n
}

func (l *callLog) lastQuery(t *testing.T) url.Values {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.calls)
	parsed, err := url.Parse(l.calls[len(l.calls)-1])
	require.NoError(t, err)
	return parsed.Query()
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, event := range p.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func configuredSettings() *config.Settings {
	settings := config.NewSettings(nil)
	settings.SetGameID("1")
	settings.SetUsername("alice")
	settings.SetUserToken("tok")
	settings.SetSignature("sig")
	return settings
}

type harness struct {
	manager   *Manager
	transport *callLog
	clock     *fakeClock
	publisher *recordingPublisher
}

func newHarness(t *testing.T, settings *config.Settings, options ...Option) *harness {
	t.Helper()

	transport := newCallLog()
	client, err := api.NewClient(transport, settings, api.WithBaseURL("https://api.example.test/v1"))
	require.NoError(t, err)

	clock := &fakeClock{}
	publisher := &recordingPublisher{}
	ids := 0
	base := []Option{
		WithTicker(clock.NewTicker),
		WithPublisher(publisher),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("sess-%d", ids)
		}),
	}
	manager, err := NewManager(client, append(base, options...)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = manager.Close(context.Background())
	})
	return &harness{manager: manager, transport: transport, clock: clock, publisher: publisher}
}
