// Package tlsx provides the pluggable TLS handshake layer: a modern
// provider, a legacy provider with protocol-version toggles, a reserved
// browser-fingerprint slot, and a cycler that rotates providers so the
// observable JA3 fingerprint varies per connection.
package tlsx

import (
	"context"
	"crypto/tls"
	"net"

	utls "github.com/refraction-networking/utls"
)

// AttackProfile carries the orthogonal protocol-shape toggles attached to
// each execution task.
type AttackProfile struct {
	// ForceHTTP1 advertises only http/1.1 in ALPN. Required whenever the
	// payload is HTTP/1.x text: a server that completes ALPN as h2
	// answers the first text byte with PROTOCOL_ERROR.
	ForceHTTP1 bool
	// ForceHTTP10 downgrades the raw request line to HTTP/1.0.
	ForceHTTP10 bool
	// ForceTLS11 refuses TLS 1.2+. Only the legacy provider can satisfy
	// this.
	ForceTLS11 bool
	// Use0RTT is carried with the task; no provider reads it, so it does
	// not turn on early data. Session resumption on the native provider
	// happens whether or not it is set.
	Use0RTT bool
	// FragmentHandshake caps transport writes at 5 bytes with 5 ms
	// spacing.
	FragmentHandshake bool
}

// Impersonator performs a TLS handshake over an established transport and
// returns the wrapped stream.
type Impersonator interface {
	Handshake(ctx context.Context, domain string, conn net.Conn, profile AttackProfile) (net.Conn, error)
	Name() string
}

// alpnProtocols returns the ALPN preference list for a profile.
func alpnProtocols(profile AttackProfile) []string {
	if profile.ForceHTTP1 {
		return []string{"http/1.1"}
	}
	return []string{"h2", "http/1.1"}
}

// NegotiatedALPN returns the ALPN protocol a handshaken connection
// settled on, or empty for plain transports.
func NegotiatedALPN(conn net.Conn) string {
	switch c := conn.(type) {
	case *tls.Conn:
		return c.ConnectionState().NegotiatedProtocol
	case *utls.UConn:
		return c.ConnectionState().NegotiatedProtocol
	}
	return ""
}
