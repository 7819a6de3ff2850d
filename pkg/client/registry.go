package client

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ipbus/uhal-go/pkg/transport"
	"github.com/ipbus/uhal-go/pkg/version"
	"github.com/ipbus/uhal-go/pkg/wire"
)

// Factory builds a client for a parsed URI. cfg already carries the URI
// query overrides and defaults.
type Factory func(id string, uri URI, cfg Config) (*Client, error)

// Registry maps URI protocols to client factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry. Call RegisterBuiltins to add the
// protocols this module implements.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for protocol.
func (r *Registry) Register(protocol string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[protocol]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProtocol, protocol)
	}
	r.factories[protocol] = f
	return nil
}

// Protocols returns the registered protocols, sorted.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// New parses uri and builds a client with the factory registered for its
// protocol.
func (r *Registry) New(id, uri string, cfg Config) (*Client, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	f, ok := r.factories[u.Protocol]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownProtocol, u.Protocol, r.Protocols())
	}

	cfg, err = cfg.withQuery(u.Query)
	if err != nil {
		return nil, err
	}
	return f(id, u, cfg.withDefaults())
}

// RegisterBuiltins adds ipbustcp-1.3 and ipbustcp-2.0.
func RegisterBuiltins(r *Registry) error {
	for _, v := range version.Supported() {
		if err := r.Register(version.Scheme("tcp", v), NewTCPFactory(v)); err != nil {
			return err
		}
	}
	return nil
}

// NewTCPFactory returns a factory for IPbus version v over TCP.
func NewTCPFactory(v version.Version) Factory {
	return func(id string, uri URI, cfg Config) (*Client, error) {
		s, err := wire.NewSerializer(v)
		if err != nil {
			return nil, err
		}
		tr := transport.NewTCP(uri.Host, uri.Port, transport.Config{
			Timeout:        cfg.Timeout,
			MaxPacketSize:  cfg.MaxPacketSize,
			Logger:         cfg.Logger.With("device", id),
			ProtocolLogger: cfg.ProtocolLogger,
			DeviceID:       id,
			Protocol:       uri.Protocol,
		})
		return New(id, uri, s, tr, cfg)
	}
}

// DefaultRegistry returns a process-wide registry holding the built-in
// protocols.
var DefaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(fmt.Sprintf("failed to register built-in protocols: %v", err))
	}
	return r
})
