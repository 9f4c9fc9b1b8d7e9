// Package netx builds the raw adversarial transports: pre-configured TCP
// sockets, the fragmenting write wrapper, DoH resolution and the HTTP/2
// control-frame flood.
package netx

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ConnectAdversarial dials a TCP connection whose socket options are
// applied before connect: SO_LINGER=0 so close emits an RST instead of a
// FIN, and TCP_NODELAY so fragments hit the wire unmerged. localAddr
// optionally pins the outbound interface (IP swarm rotation). forceHTTP1
// is a protocol constraint carried for the TLS layer; it has no effect at
// the socket level.
func ConnectAdversarial(ctx context.Context, addr string, localAddr *net.TCPAddr, forceHTTP1 bool) (net.Conn, error) {
	_ = forceHTTP1

	d := net.Dialer{
		// Control runs between socket creation and connect, which is
		// the only window where the linger/nodelay setup is valid.
		Control: adversarialControl,
	}
	if localAddr != nil {
		d.LocalAddr = localAddr
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("adversarial connect to %s: %w", addr, err)
	}
	return conn, nil
}

// adversarialControl applies the abortive-close and no-delay options on
// the raw fd. Non-blocking mode is the runtime poller's default and needs
// no explicit setup.
func adversarialControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptLinger(int(fd), unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{
			Onoff:  1,
			Linger: 0,
		})
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
