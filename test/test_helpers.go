// Package test provides shared fixtures for tests that touch the
// filesystem, the working directory or the JOLT_* environment.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EnvKeys lists every environment variable that changes jolt's configuration.
var EnvKeys = []string{
	"JOLT_BASE_URL",
	"JOLT_GAME_ID",
	"JOLT_USERNAME",
	"JOLT_USER_TOKEN",
	"JOLT_PRIVATE_KEY",
	"JOLT_ENV",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Context returns a context cancelled when the test completes.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// Home points HOME at a fresh temporary directory, clears EnvKeys and
// returns the directory.
func Home(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range EnvKeys {
		t.Setenv(key, "")
	}
	return home
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750), "failed to create %s", filepath.Dir(path))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write %s", path)
	return path
}

// WriteConfig writes a config.toml under dir/.jolt and returns its path.
func WriteConfig(t *testing.T, dir, content string) string {
	t.Helper()
	return WriteFile(t, filepath.Join(dir, ".jolt", "config.toml"), content)
}

// Chdir changes to dir until the test completes.
func Chdir(t *testing.T, dir string) {
	t.Helper()
	original, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")
	require.NoError(t, os.Chdir(dir), "failed to change directory")

	t.Cleanup(func() {
		assert.NoError(t, os.Chdir(original), "failed to restore working directory")
	})
}

// AssertFileContent checks that the file at path holds exactly want.
func AssertFileContent(t *testing.T, path, want string) {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	assert.Equal(t, want, string(content), "file content mismatch")
}
