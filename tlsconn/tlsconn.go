// Package tlsconn wraps crypto/tls with a functional Config builder so
// the socket layer never needs to know TLS is involved: a tlsconn.Conn
// satisfies net.Conn and is handed to httpx exactly like a plain
// connection.
package tlsconn

import (
	"context"
	"crypto/tls"
	"net"
)

// Option configures a Config.
type Option func(*tls.Config)

// Config accumulates Options into a *tls.Config via Build.
type Config struct {
	opts []Option
}

// New constructs an empty Config.
func New(opts ...Option) *Config {
	return &Config{opts: opts}
}

// With appends an Option and returns the Config for chaining.
func (c *Config) With(opts ...Option) *Config {
	c.opts = append(c.opts, opts...)
	return c
}

// Build resolves the accumulated Options into a *tls.Config, starting
// from a minimum-TLS-1.2 baseline.
func (c *Config) Build() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	for _, o := range c.opts {
		o(cfg)
	}
	return cfg
}

// WithCertificate appends a server certificate/key pair.
func WithCertificate(cert tls.Certificate) Option {
	return func(c *tls.Config) { c.Certificates = append(c.Certificates, cert) }
}

// WithServerName sets the SNI/verification name used on the client side.
func WithServerName(name string) Option {
	return func(c *tls.Config) { c.ServerName = name }
}

// WithMinVersion overrides the minimum negotiated TLS version.
func WithMinVersion(v uint16) Option {
	return func(c *tls.Config) { c.MinVersion = v }
}

// WithInsecureSkipVerify disables certificate verification; test-only,
// never set by any of netkit's own constructors.
func WithInsecureSkipVerify() Option {
	return func(c *tls.Config) { c.InsecureSkipVerify = true }
}

// WithClientAuth sets the server-side client-certificate policy.
func WithClientAuth(policy tls.ClientAuthType) Option {
	return func(c *tls.Config) { c.ClientAuth = policy }
}

// Client wraps conn in a TLS client connection using cfg, performing the
// handshake before returning.
func Client(ctx context.Context, conn net.Conn, cfg *Config) (net.Conn, error) {
	tc := tls.Client(conn, cfg.Build())
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tc, nil
}

// Server wraps conn in a TLS server connection using cfg, performing the
// handshake before returning.
func Server(ctx context.Context, conn net.Conn, cfg *Config) (net.Conn, error) {
	ts := tls.Server(conn, cfg.Build())
	if err := ts.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return ts, nil
}
