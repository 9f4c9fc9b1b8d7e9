package netx

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func startListener(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().String()
}

func TestConnectAdversarialAppliesSocketOptions(t *testing.T) {
	ln, addr := startListener(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			io.Copy(io.Discard, conn)
		}
	}()

	conn, err := ConnectAdversarial(context.Background(), addr, nil, true)
	require.NoError(t, err)
	defer conn.Close()

	tcpConn, ok := conn.(*net.TCPConn)
	require.True(t, ok)

	raw, err := tcpConn.SyscallConn()
	require.NoError(t, err)

	var linger *unix.Linger
	var nodelay int
	var sockErr error
	require.NoError(t, raw.Control(func(fd uintptr) {
		linger, sockErr = unix.GetsockoptLinger(int(fd), unix.SOL_SOCKET, unix.SO_LINGER)
		if sockErr != nil {
			return
		}
		nodelay, sockErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY)
	}))
	require.NoError(t, sockErr)

	assert.NotZero(t, linger.Onoff, "SO_LINGER not enabled")
	assert.Zero(t, linger.Linger, "linger timeout must be zero for abortive close")
	assert.NotZero(t, nodelay, "TCP_NODELAY not enabled")
}

func TestConnectAdversarialAbortiveClose(t *testing.T) {
	ln, addr := startListener(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := ConnectAdversarial(context.Background(), addr, nil, false)
	require.NoError(t, err)

	server := <-accepted
	defer server.Close()

	// Dropping the client must surface as a reset on the peer, not a
	// graceful EOF.
	require.NoError(t, conn.Close())

	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, readErr := server.Read(buf)
	require.Error(t, readErr)
	assert.NotErrorIs(t, readErr, io.EOF, "peer saw FIN, expected RST")
	assert.True(t, errors.Is(readErr, unix.ECONNRESET) || isResetErr(readErr),
		"expected connection reset, got %v", readErr)
}

func isResetErr(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && errors.Is(opErr.Err, unix.ECONNRESET)
}

func TestConnectAdversarialLocalBind(t *testing.T) {
	ln, addr := startListener(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			io.Copy(io.Discard, conn)
		}
	}()

	local := &net.TCPAddr{IP: net.ParseIP("127.0.0.1")}
	conn, err := ConnectAdversarial(context.Background(), addr, local, false)
	require.NoError(t, err)
	defer conn.Close()

	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
}

func TestConnectAdversarialRefused(t *testing.T) {
	// Grab a port and close it so nothing listens there.
	ln, addr := startListener(t)
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ConnectAdversarial(ctx, addr, nil, false)
	assert.Error(t, err)
}
