package connection

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/ipbus/uhal-go/pkg/client"
)

// Manager owns the device table built from one or more connections files
// and hands out one client per device.
type Manager struct {
	registry *client.Registry
	config   client.Config

	mu      sync.Mutex
	entries map[string]Entry
	clients map[string]*client.Client
}

// NewManager creates an empty manager. A nil registry selects
// client.DefaultRegistry().
func NewManager(registry *client.Registry, cfg client.Config) *Manager {
	if registry == nil {
		registry = client.DefaultRegistry()
	}
	return &Manager{
		registry: registry,
		config:   cfg,
		entries:  make(map[string]Entry),
		clients:  make(map[string]*client.Client),
	}
}

// Load reads a connections file and adds its devices.
func (m *Manager) Load(path string) error {
	f, err := LoadFile(path)
	if err != nil {
		return err
	}
	return m.Add(f.Connections...)
}

// Add registers devices. Either all entries are added or none: an invalid
// entry or a clash with a known ID fails the whole call.
func (m *Manager) Add(entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return err
		}
		if _, ok := m.entries[e.ID]; ok || batch[e.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateDevice, e.ID)
		}
		batch[e.ID] = true
	}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

// Devices returns all device IDs, sorted.
func (m *Manager) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DevicesMatching returns the sorted device IDs matching a regular
// expression. The expression must match the whole ID.
func (m *Manager) DevicesMatching(pattern string) ([]string, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("bad device pattern: %w", err)
	}
	var out []string
	for _, id := range m.Devices() {
		if re.MatchString(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Entry returns the entry for a device.
func (m *Manager) Entry(id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return e, nil
}

// Client returns the client for a device, creating it on first use.
// Repeated calls return the same client.
func (m *Manager) Client(id string) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[id]; ok {
		return c, nil
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	c, err := m.registry.New(e.ID, e.URI, m.config)
	if err != nil {
		return nil, err
	}
	m.clients[id] = c
	return c, nil
}

// Close closes every client handed out. The device table is kept.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, c := range m.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
		delete(m.clients, id)
	}
	return errors.Join(errs...)
}
