// Package service provides the business logic services for zeno.
package service

import (
	"strings"
	"sync"
)

// defaultAllowPrefixes are always served during maintenance.
var defaultAllowPrefixes = []string{
	"/healthz",
	"/metrics",
	"/maintenance",
	"/static/",
	"/assets/",
	"/favicon.ico",
}

// MaintenanceState is the runtime maintenance flag. Seeded from config at
// boot and toggled through the admin API afterwards. Safe for concurrent use.
type MaintenanceState struct {
	mu            sync.RWMutex
	enabled       bool
	allowPrefixes []string
}

// NewMaintenanceState creates the state. extraPrefixes extends the built-in
// allow list.
func NewMaintenanceState(enabled bool, extraPrefixes []string) *MaintenanceState {
	prefixes := make([]string, 0, len(defaultAllowPrefixes)+len(extraPrefixes))
	prefixes = append(prefixes, defaultAllowPrefixes...)
	prefixes = append(prefixes, extraPrefixes...)
	return &MaintenanceState{enabled: enabled, allowPrefixes: prefixes}
}

// Enabled reports whether maintenance mode is active.
func (m *MaintenanceState) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Set switches maintenance mode on or off and reports the previous value.
func (m *MaintenanceState) Set(enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.enabled
	m.enabled = enabled
	return prev
}

// Allows reports whether path is served while maintenance mode is active.
// Exact allow entries match exactly; entries ending in "/" match as
// prefixes.
func (m *MaintenanceState) Allows(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, prefix := range m.allowPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == prefix {
			return true
		}
	}
	return false
}
