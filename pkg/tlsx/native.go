package tlsx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// NativeProvider wraps the platform TLS stack. It keeps two preconfigured
// client configs, one per ALPN shape, sharing a single in-memory session
// cache so resumption spans every connection made through this provider.
// The engine hands one cycler, and with it one provider, to the whole hive.
// No early data (0-RTT) is sent.
type NativeProvider struct {
	configHTTP1 *tls.Config
	configH2    *tls.Config
}

// NewNativeProvider builds the provider and its shared session cache.
func NewNativeProvider() *NativeProvider {
	cache := tls.NewLRUClientSessionCache(256)

	base := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: cache,
		// Audit targets routinely present self-signed or mismatched
		// certificates.
		InsecureSkipVerify: true,
	}

	http1 := base.Clone()
	http1.NextProtos = []string{"http/1.1"}

	h2 := base.Clone()
	h2.NextProtos = []string{"h2", "http/1.1"}

	return &NativeProvider{configHTTP1: http1, configH2: h2}
}

// Handshake implements Impersonator.
func (p *NativeProvider) Handshake(ctx context.Context, domain string, conn net.Conn, profile AttackProfile) (net.Conn, error) {
	if profile.ForceTLS11 {
		return nil, fmt.Errorf("native provider supports TLS 1.2+ only; use the legacy provider for TLS 1.1")
	}

	cfg := p.configH2
	if profile.ForceHTTP1 {
		cfg = p.configHTTP1
	}
	cfg = cfg.Clone()
	cfg.ServerName = domain

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("native handshake with %s: %w", domain, err)
	}
	return tlsConn, nil
}

func (p *NativeProvider) Name() string { return "native" }
