package config

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotConfigured is matched by every accessor failure for an unset setting.
var ErrNotConfigured = errors.New("setting not configured")

// NotConfiguredError names the setting that was read before being set.
type NotConfiguredError struct {
	Field string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s was accessed, but has not been set", e.Field)
}

// Is lets errors.Is(err, ErrNotConfigured) match.
func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// Settings holds the credentials every request needs. Values are validated
// lazily: nothing fails until an unset value is read.
type Settings struct {
	mu        sync.RWMutex
	gameID    string
	username  string
	userToken string
	signature string
}

// NewSettings builds Settings from a loaded Config. A private key takes
// precedence over a precomputed signature.
func NewSettings(cfg *Config) *Settings {
	settings := &Settings{}
	if cfg == nil {
		return settings
	}
	settings.SetGameID(cfg.GameID)
	settings.SetUsername(cfg.Username)
	settings.SetUserToken(cfg.UserToken)
	if cfg.Signature != "" {
		settings.SetSignature(cfg.Signature)
	}
	if cfg.PrivateKey != "" {
		settings.SetPrivateKey(cfg.PrivateKey)
	}
	return settings
}

// GameID returns the configured game id.
func (s *Settings) GameID() (string, error) {
	return s.read("game_id", func() string { return s.gameID })
}

// Username returns the configured username.
func (s *Settings) Username() (string, error) {
	return s.read("username", func() string { return s.username })
}

// UserToken returns the configured user token.
func (s *Settings) UserToken() (string, error) {
	return s.read("user_token", func() string { return s.userToken })
}

// Signature returns the request signature.
func (s *Settings) Signature() (string, error) {
	return s.read("signature", func() string { return s.signature })
}

// SetGameID stores the game id.
func (s *Settings) SetGameID(value string) {
	s.write(func() { s.gameID = strings.TrimSpace(value) })
}

// SetUsername stores the username.
func (s *Settings) SetUsername(value string) {
	s.write(func() { s.username = strings.TrimSpace(value) })
}

// SetUserToken stores the user token.
func (s *Settings) SetUserToken(value string) {
	s.write(func() { s.userToken = strings.TrimSpace(value) })
}

// SetSignature stores an already hashed signature.
func (s *Settings) SetSignature(value string) {
	s.write(func() { s.signature = strings.TrimSpace(value) })
}

// SetPrivateKey derives the signature from the developer private key.
func (s *Settings) SetPrivateKey(privateKey string) {
	sum := md5.Sum([]byte(strings.TrimSpace(privateKey)))
	s.SetSignature(hex.EncodeToString(sum[:]))
}

func (s *Settings) read(field string, get func() string) (string, error) {
	if s == nil {
		return "", &NotConfiguredError{Field: field}
	}
	s.mu.RLock()
	value := get()
	s.mu.RUnlock()
	if value == "" {
		return "", &NotConfiguredError{Field: field}
	}
	return value, nil
}

func (s *Settings) write(set func()) {
	if s == nil {
		return
	}
	s.mu.Lock()
	set()
	s.mu.Unlock()
}
