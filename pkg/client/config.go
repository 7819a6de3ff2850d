package client

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/ipbus/uhal-go/pkg/log"
	"github.com/ipbus/uhal-go/pkg/transport"
	"github.com/ipbus/uhal-go/pkg/wire"
)

// Defaults applied to zero Config fields.
const (
	DefaultTimeout       = transport.DefaultTimeout
	DefaultMaxPacketSize = wire.DefaultMaxPacketSize
)

// URI query parameters that override Config.
const (
	QueryTimeout       = "timeout"
	QueryMaxPacketSize = "max_packet_size"
)

// Config configures a client.
type Config struct {
	// Timeout bounds each packet exchange (default: 10s).
	Timeout time.Duration

	// MaxPacketSize is the largest request or reply in bytes (default: 1472).
	MaxPacketSize int

	// Logger receives operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (optional).
	ProtocolLogger log.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = DefaultMaxPacketSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	return c
}

// withQuery applies URI query overrides.
func (c Config) withQuery(q url.Values) (Config, error) {
	if s := q.Get(QueryTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return c, fmt.Errorf("%w: %s=%q", ErrInvalidURI, QueryTimeout, s)
		}
		c.Timeout = d
	}
	if s := q.Get(QueryMaxPacketSize); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < wire.MinMaxPacketSize {
			return c, fmt.Errorf("%w: %s=%q", ErrInvalidURI, QueryMaxPacketSize, s)
		}
		c.MaxPacketSize = n
	}
	return c, nil
}
