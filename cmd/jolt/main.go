package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joltkit/jolt/internal/api"
	"github.com/joltkit/jolt/internal/config"
	"github.com/joltkit/jolt/internal/logging"
	"github.com/joltkit/jolt/internal/telemetry"
	"github.com/joltkit/jolt/internal/transport"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// newFetcher builds the transport used by every command.
var newFetcher = func(cfg *config.Config) transport.Fetcher {
	return transport.HTTPFetcher{
		RequestTimeout: cfg.RequestTimeout,
		UserAgent:      "jolt/" + Version,
	}
}

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

	logger, err := logging.New(ctx, logging.WithLevel(cfg.LogLevel), logging.WithRunID(uuid.NewString()[:8]))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()
	telemetry.ServiceVersion = Version

	cmd := newRootCommand(ctx, cfg, logger.Logger)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Logger.With("command", resolveCommandName(args)).Error("command failed", "args", redactArgs(args), "err", err)
		return err
	}

	return nil
}

// credentialFlags override the configured credentials for one invocation.
type credentialFlags struct {
	baseURL      string
	gameID       string
	username     string
	userToken    string
	privateKey   string
	otelEndpoint string
}

type app struct {
	cfg    *config.Config
	logger *log.Logger
	flags  credentialFlags
}

func newRootCommand(ctx context.Context, cfg *config.Config, logger *log.Logger) *cobra.Command {
	a := &app{cfg: cfg, logger: logger}

	root := &cobra.Command{
		Use:           "jolt",
		Short:         "Game platform API client and session keepalive runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	flags := root.PersistentFlags()
	flags.StringVar(&a.flags.baseURL, "base-url", "", "API root URL (overrides base_url)")
	flags.StringVar(&a.flags.gameID, "game-id", "", "game id (overrides game_id)")
	flags.StringVar(&a.flags.username, "username", "", "player username (overrides username)")
	flags.StringVar(&a.flags.userToken, "user-token", "", "player token (overrides user_token)")
	flags.StringVar(&a.flags.privateKey, "private-key", "", "game private key used to derive the signature")
	flags.StringVar(&a.flags.otelEndpoint, "otel-endpoint", "", "trace exporter endpoint, or \"stderr\"")

	root.AddCommand(
		newSessionCommand(a),
		newUserCommand(a),
		newScoresCommand(a),
		newDataCommand(a),
		newTrophiesCommand(a),
		newBugreportCommand(logger),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.With("command", cmd.CommandPath()).Debug("command invocation")
		return nil
	}

	_ = ctx
	return root
}

// settings resolves credentials from config with flag overrides applied.
func (a *app) settings() *config.Settings {
	settings := config.NewSettings(a.cfg)
	if a.flags.gameID != "" {
		settings.SetGameID(a.flags.gameID)
	}
	if a.flags.username != "" {
		settings.SetUsername(a.flags.username)
	}
	if a.flags.userToken != "" {
		settings.SetUserToken(a.flags.userToken)
	}
	if a.flags.privateKey != "" {
		settings.SetPrivateKey(a.flags.privateKey)
	}
	return settings
}

func (a *app) baseURL() string {
	if url := strings.TrimSpace(a.flags.baseURL); url != "" {
		return url
	}
	if a.cfg.BaseURL != "" {
		return a.cfg.BaseURL
	}
	return config.DefaultBaseURL
}

func (a *app) newClient() (*api.Client, error) {
	return api.NewClient(newFetcher(a.cfg), a.settings(),
		api.WithBaseURL(a.baseURL()),
		api.WithLogger(a.logger),
	)
}

// withClient runs fn with tracing installed for the duration of the command.
func (a *app) withClient(cmd *cobra.Command, fn func(ctx context.Context, client *api.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if a.flags.otelEndpoint != "" {
		telemetry.SetEndpointOverride(a.flags.otelEndpoint)
	}
	shutdown, err := telemetry.Init(ctx, a.cfg.OTELEndpoint)
	if err != nil {
		a.logger.Warn("tracing disabled", "err", err)
		shutdown = func() {}
	}
	defer shutdown()

	client, err := a.newClient()
	if err != nil {
		return err
	}
	return fn(ctx, client)
}

var sensitiveFlagTokens = []string{"token", "key", "secret", "password", "signature"}

func isSensitiveToken(name string) bool {
	for _, token := range sensitiveFlagTokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

// resolveCommandName returns the first non-flag argument, or "root".
func resolveCommandName(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
		if !strings.Contains(arg, "=") && i+1 < len(args) && takesValue(arg) {
			i++
		}
	}
	return "root"
}

func takesValue(flag string) bool {
	switch strings.TrimLeft(flag, "-") {
	case "base-url", "game-id", "username", "user-token", "private-key", "otel-endpoint":
		return true
	default:
		return false
	}
}

// redactArgs masks the values of sensitive flags for logging.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		arg := out[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !isSensitiveToken(strings.ToLower(name)) {
			continue
		}
		if hasValue {
			out[i] = arg[:strings.Index(arg, "=")+1] + "<redacted>"
			continue
		}
		if i+1 < len(out) {
			out[i+1] = "<redacted>"
			i++
		}
	}
	return out
}
