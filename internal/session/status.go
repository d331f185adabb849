package session

import (
	"fmt"
	"strings"
)

// Status is the presence reported with every ping.
type Status string

const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
)

// ParseStatus validates a status name, case-insensitively.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown session status %q", value)
	}
	return status, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusIdle
}

func (s Status) String() string {
	return string(s)
}
