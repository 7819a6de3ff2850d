package client

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URI addresses a target: protocol://host:port/path?query.
type URI struct {
	// Protocol is the lower-cased scheme, e.g. "ipbustcp-2.0".
	Protocol string

	// Host is a host name or IP address.
	Host string

	// Port is a port number or service name.
	Port string

	// Path is optional and passed through.
	Path string

	// Query holds the arguments after '?'.
	Query url.Values
}

// ParseURI parses and checks a target URI.
func ParseURI(s string) (URI, error) {
	u, err := url.Parse(s)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	if u.Scheme == "" {
		return URI{}, fmt.Errorf("%w: %q has no protocol", ErrInvalidURI, s)
	}
	if u.Hostname() == "" {
		return URI{}, fmt.Errorf("%w: %q has no host", ErrInvalidURI, s)
	}
	if u.Port() == "" {
		return URI{}, fmt.Errorf("%w: %q has no port", ErrInvalidURI, s)
	}
	return URI{
		Protocol: strings.ToLower(u.Scheme),
		Host:     u.Hostname(),
		Port:     u.Port(),
		Path:     u.Path,
		Query:    u.Query(),
	}, nil
}

// String formats the URI.
func (u URI) String() string {
	out := url.URL{
		Scheme:   u.Protocol,
		Host:     net.JoinHostPort(u.Host, u.Port),
		Path:     u.Path,
		RawQuery: u.Query.Encode(),
	}
	return out.String()
}
