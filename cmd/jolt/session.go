package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joltkit/jolt/internal/api"
	"github.com/joltkit/jolt/internal/events"
	"github.com/joltkit/jolt/internal/session"
	"github.com/joltkit/jolt/internal/state"
	"github.com/spf13/cobra"
)

func newSessionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open, keep alive and close the player's session",
	}
	cmd.AddCommand(newSessionRunCommand(a), newSessionCheckCommand(a))
	return cmd
}

func (a *app) newManager(client *api.Client, publisher events.Publisher, interval time.Duration) (*session.Manager, error) {
	if interval <= 0 {
		interval = a.cfg.KeepaliveInterval
	}
	return session.NewManager(client,
		session.WithKeepaliveInterval(interval),
		session.WithMaxPingFailures(a.cfg.MaxPingFailures),
		session.WithPublisher(publisher),
		session.WithLogger(a.logger),
	)
}

func newSessionRunCommand(a *app) *cobra.Command {
	var (
		duration  time.Duration
		idleAfter time.Duration
		interval  time.Duration
		status    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Hold a session open with background keepalive pings until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initial, err := session.ParseStatus(status)
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				bus := events.New(events.WithLogger(a.logger))
				defer bus.Close()

				out := &lockedWriter{w: cmd.OutOrStdout()}
				expired := make(chan struct{}, 1)
				bus.SubscribeAll(func(event events.Event) {
					fmt.Fprintln(out, describeEvent(event))
				})
				bus.Subscribe(events.EventTypeSessionExpired, func(events.Event) {
					select {
					case expired <- struct{}{}:
					default:
					}
				})

				manager, err := a.newManager(client, bus, interval)
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				if _, err := manager.Open(ctx, session.OpenOptions{Status: initial, Automated: true}); err != nil {
					return err
				}
				if info, ok := manager.Info(); ok {
					fmt.Fprintf(out, "session %s open for %s (status %s)\n", info.ID, info.Username, info.Status)
				}

				var idle <-chan time.Time
				if idleAfter > 0 && initial != session.StatusIdle {
					timer := time.NewTimer(idleAfter)
					defer timer.Stop()
					idle = timer.C
				}

			wait:
				for {
					select {
					case <-ctx.Done():
						break wait
					case <-expired:
						return errors.New("session expired after repeated ping failures")
					case <-idle:
						idle = nil
						if err := manager.ChangeStatus(session.StatusIdle); err != nil {
							a.logger.Warn("change session status", "err", err)
							continue
						}
						fmt.Fprintln(out, "status will be reported as idle from the next ping")
					}
				}

				closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
				defer cancel()
				if err := manager.Close(closeCtx); err != nil && !errors.Is(err, session.ErrNoActiveSession) {
					return err
				}
				fmt.Fprintln(out, "session closed")
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "for", 0, "close the session after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&idleAfter, "idle-after", 0, "report the player as idle after this long")
	cmd.Flags().DurationVar(&interval, "interval", 0, "keepalive interval (defaults to keepalive_interval)")
	cmd.Flags().StringVar(&status, "status", string(session.StatusActive), "initial status: active or idle")
	return cmd
}

func newSessionCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open a session, ping it once and close it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				manager, err := a.newManager(client, nil, 0)
				if err != nil {
					return err
				}
				if _, err := manager.Open(ctx, session.OpenOptions{}); err != nil {
					return err
				}
				defer func() {
					if closeErr := manager.Close(context.Background()); closeErr != nil {
						a.logger.Warn("close session", "err", closeErr)
					}
				}()

				response, err := manager.Ping(ctx)
				if err != nil {
					return err
				}
				info, _ := manager.Info()
				return writeFields(cmd.OutOrStdout(),
					"session", info.ID,
					"username", info.Username,
					"status", info.Status.String(),
					"ping", describeFields(response.Fields()),
				)
			})
		},
	}
}

func describeEvent(event events.Event) string {
	prefix := fmt.Sprintf("%s %-5s %s", event.Timestamp.Format(time.RFC3339), event.Severity, event.Type)
	switch payload := event.Payload.(type) {
	case state.TransitionRecord:
		return fmt.Sprintf("%s %s -> %s (%s)", prefix, payload.FromState, payload.ToState, payload.Reason)
	case map[string]string:
		return prefix + " " + describeFields(payload)
	default:
		return prefix
	}
}

func describeFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+fields[key])
	}
	return strings.Join(parts, " ")
}

// lockedWriter serializes writes from the event bus and the command goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
