package tlsx

import (
	"context"
	"errors"
	"net"
)

// ChromeProvider is the reserved slot for a browser-accurate fingerprint.
// It is not implemented yet; handshakes fail cleanly so the cycler's
// rotation stays observable when it is configured in.
type ChromeProvider struct{}

var errChromeNotImplemented = errors.New("chrome fingerprint provider not implemented")

// Handshake implements Impersonator.
func (ChromeProvider) Handshake(_ context.Context, _ string, _ net.Conn, _ AttackProfile) (net.Conn, error) {
	return nil, errChromeNotImplemented
}

func (ChromeProvider) Name() string { return "chrome" }
