package main

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joltkit/jolt/internal/api"
	"github.com/joltkit/jolt/internal/config"
	"github.com/joltkit/jolt/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandVersionFlag(t *testing.T) {
	originalVersion := Version
	defer func() {
		Version = originalVersion
	}()
	Version = "v0.1.0-test"
	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger())

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := strings.TrimSpace(stdout.String())
	if output != "v0.1.0-test" {
		t.Fatalf("version output = %q, want %q", output, "v0.1.0-test")
	}
}

func TestRootCommandHelpListsExpectedSubcommands(t *testing.T) {
	cmd := newRootCommand(context.Background(), &config.Config{}, testLogger())
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	output := stdout.String()
	expected := []string{"session", "user", "scores", "data", "trophies", "bugreport"}
	for _, name := range expected {
		if !strings.Contains(output, name) {
			t.Fatalf("help output missing %q: %s", name, output)
		}
	}
}

func TestRootCommandRequiresConfig(t *testing.T) {
	cmd := newRootCommand(context.Background(), nil, testLogger())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"user", "auth"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "config is required") {
		t.Fatalf("err = %v, want config is required", err)
	}
}

func testLogger() *log.Logger {
	return log.NewWithOptions(&bytes.Buffer{}, log.Options{})
}

func TestResolveCommandName(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "subcommand", args: []string{"session", "run"}, want: "session"},
		{name: "flag value skipped", args: []string{"--game-id", "42", "scores"}, want: "scores"},
		{name: "inline flag value", args: []string{"--username=alice", "user"}, want: "user"},
		{name: "no command defaults to root", args: []string{"--help"}, want: "root"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveCommandName(tc.args); got != tc.want {
				t.Fatalf("resolveCommandName(%v) = %q, want %q", tc.args, got, tc.want)
			}
		})
	}
}

func TestRedactArgs(t *testing.T) {
	input := []string{
		"user",
		"auth",
		"--user-token",
		"abc123",
		"--private-key=supersecret",
		"--username=alice",
	}
	want := []string{
		"user",
		"auth",
		"--user-token",
		"<redacted>",
		"--private-key=<redacted>",
		"--username=alice",
	}

	if got := redactArgs(input); !reflect.DeepEqual(got, want) {
		t.Fatalf("redactArgs(%v) = %v, want %v", input, got, want)
	}
}

// stubFetcher answers by endpoint path suffix and records every request.
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []*url.URL
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, parsed)
	path := strings.TrimPrefix(parsed.Path, "/v1")
	if body, ok := s.responses[path]; ok {
		return body, nil
	}
	return "success:false\nmessage:unexpected endpoint " + path, nil
}

func (s *stubFetcher) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		out = append(out, strings.TrimPrefix(call.Path, "/v1"))
	}
	return out
}

func (s *stubFetcher) lastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1].Query()
}

func useStubFetcher(t *testing.T, responses map[string]string) *stubFetcher {
	t.Helper()
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	stub := &stubFetcher{responses: responses}
	previous := newFetcher
	newFetcher = func(*config.Config) transport.Fetcher { return stub }
	t.Cleanup(func() { newFetcher = previous })
	return stub
}

func configuredConfig() *config.Config {
	return &config.Config{
		BaseURL:           "https://api.example.test/v1",
		GameID:            "1",
		Username:          "alice",
		UserToken:         "tok",
		Signature:         "sig",
		KeepaliveInterval: time.Minute,
		RequestTimeout:    time.Second,
	}
}

func executeCommand(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(context.Background(), cfg, testLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUserAuthCommand(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{"/users/auth/": "success:true"})

	out, err := executeCommand(t, configuredConfig(), "user", "auth")
	require.NoError(t, err)
	assert.Contains(t, out, "credentials verified")

	query := stub.lastQuery()
	assert.Equal(t, "alice", query.Get(api.ParamUsername))
	assert.Equal(t, "tok", query.Get(api.ParamUserToken))
	assert.Equal(t, "sig", query.Get(api.ParamSignature))
}

func TestUserAuthCommandRejected(t *testing.T) {
	useStubFetcher(t, map[string]string{"/users/auth/": "success:false\nmessage:no such user"})

	_, err := executeCommand(t, configuredConfig(), "user", "auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestCredentialFlagsOverrideConfig(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{"/users/auth/": "success:true"})

	_, err := executeCommand(t, configuredConfig(), "--game-id", "42", "--username=bob", "--user-token", "t2", "user", "auth")
	require.NoError(t, err)

	query := stub.lastQuery()
	assert.Equal(t, "42", query.Get(api.ParamGameID))
	assert.Equal(t, "bob", query.Get(api.ParamUsername))
	assert.Equal(t, "t2", query.Get(api.ParamUserToken))
}

func TestCommandsReportMissingConfiguration(t *testing.T) {
	useStubFetcher(t, map[string]string{"/users/auth/": "success:true"})

	_, err := executeCommand(t, &config.Config{BaseURL: "https://api.example.test/v1"}, "user", "auth")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrNotConfigured), "err = %v", err)
}

func TestScoresTablesCommand(t *testing.T) {
	useStubFetcher(t, map[string]string{
		"/scores/tables/": "success:true\nid:1\nname:\"Main\"\ndescription:\"All time\"\nprimary:1\nid:2\nname:\"Weekly\"\ndescription:\"\"\nprimary:0",
	})

	out, err := executeCommand(t, configuredConfig(), "scores", "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "Main")
	assert.Contains(t, out, "Weekly")
	assert.Contains(t, out, "yes")
}

func TestScoresListCommand(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{
		"/scores/": `{"response":{"success":"true","scores":[{"score":"500 coins","sort":"500","user":"alice","stored":"1 hour ago"},{"score":"20 coins","sort":"20","guest":"zed","stored":"now"}]}}`,
	})

	out, err := executeCommand(t, configuredConfig(), "scores", "list", "--limit", "5", "--table", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "500 coins")
	assert.Contains(t, out, "zed (guest)")

	query := stub.lastQuery()
	assert.Equal(t, "5", query.Get("limit"))
	assert.Equal(t, "3", query.Get("table_id"))
	assert.Empty(t, query.Get(api.ParamUsername))
}

func TestScoresAddRejectsNonNumericSort(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{})

	_, err := executeCommand(t, configuredConfig(), "scores", "add", "500 coins", "lots")
	require.Error(t, err)
	assert.Empty(t, stub.paths())
}

func TestDataGetCommandPrintsDumpPayload(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{"/data-store/": "SUCCESS\nline one\nline two"})

	out, err := executeCommand(t, configuredConfig(), "data", "get", "--user", "save-1")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", out)

	query := stub.lastQuery()
	assert.Equal(t, "save-1", query.Get("key"))
	assert.Equal(t, "alice", query.Get(api.ParamUsername))
}

func TestDataUpdateRejectsUnknownOperation(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{})

	_, err := executeCommand(t, configuredConfig(), "data", "update", "coins", "modulo", "3")
	require.Error(t, err)
	assert.Empty(t, stub.paths())
}

func TestTrophiesListFlagsAreExclusive(t *testing.T) {
	useStubFetcher(t, map[string]string{})

	_, err := executeCommand(t, configuredConfig(), "trophies", "list", "--achieved", "--unachieved")
	require.Error(t, err)
}

func TestTrophiesAwardCommand(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{"/trophies/add-achieved/": "success:true"})

	out, err := executeCommand(t, configuredConfig(), "trophies", "award", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "trophy 7 awarded")
	assert.Equal(t, "7", stub.lastQuery().Get("trophy_id"))
}

func TestSessionCheckOpensPingsAndCloses(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{
		api.PathSessionOpen:  "success:true",
		api.PathSessionPing:  "success:true",
		api.PathSessionClose: "success:true",
	})

	out, err := executeCommand(t, configuredConfig(), "session", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Equal(t, []string{api.PathSessionOpen, api.PathSessionPing, api.PathSessionClose}, stub.paths())
}

func TestSessionRunKeepsAliveUntilDeadline(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{
		api.PathSessionOpen:  "success:true",
		api.PathSessionPing:  "success:true",
		api.PathSessionClose: "success:true",
	})

	out, err := executeCommand(t, configuredConfig(), "session", "run", "--for", "200ms", "--interval", "20ms", "--status", "idle")
	require.NoError(t, err)
	assert.Contains(t, out, "session closed")

	paths := stub.paths()
	require.GreaterOrEqual(t, len(paths), 2)
	assert.Equal(t, api.PathSessionOpen, paths[0])
	assert.Equal(t, api.PathSessionClose, paths[len(paths)-1])
	for _, call := range stub.calls {
		if strings.HasSuffix(call.Path, api.PathSessionPing) {
			assert.Equal(t, "idle", call.Query().Get(api.ParamStatus))
		}
	}
}

func TestSessionRunRejectsUnknownStatus(t *testing.T) {
	stub := useStubFetcher(t, map[string]string{})

	_, err := executeCommand(t, configuredConfig(), "session", "run", "--status", "away")
	require.Error(t, err)
	assert.Empty(t, stub.paths())
}
