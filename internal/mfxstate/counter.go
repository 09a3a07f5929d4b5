// Package mfxstate persists the one piece of state MFX discovery needs to
// survive a restart: the registration counter (spec.md §3, "Central UID &
// registration counter").
package mfxstate

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Counter is a decimal-ASCII-backed, monotonically non-decreasing u16
// counter. It is not safe for concurrent use — the MFX codec that owns it
// already runs on a single bus scheduler goroutine.
type Counter struct {
	path  string
	value uint16
}

// Load reads the counter from path, defaulting to 0 if the file does not
// exist yet (first run).
func Load(path string) (*Counter, error) {
	c := &Counter{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("mfxstate: read %s: %w", path, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("mfxstate: parse %s: %w", path, err)
	}
	c.value = uint16(v)
	return c, nil
}

// Value returns the current counter value; the *uint16 it's backed by can
// be handed straight to codec.NewMFX, which increments it in place on every
// successful discovery.
func (c *Counter) Value() *uint16 { return &c.value }

// Persist writes the current value to the counter file. It is not called
// after each successful discovery; the daemon calls it only when it tears a
// DDL bus down at shutdown.
func (c *Counter) Persist() error {
	return os.WriteFile(c.path, []byte(strconv.FormatUint(uint64(c.value), 10)+"\n"), 0o644)
}
