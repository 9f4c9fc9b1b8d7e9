package netx

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/http2"
)

// ControlFlood drives a bounded burst of HTTP/2 PING control frames over
// an already-established connection whose peer negotiated h2. The peer
// must ack every frame, so a saturated server stalls the flood rather
// than the caller's memory.
func ControlFlood(ctx context.Context, conn net.Conn, frames int) error {
	tr := &http2.Transport{}
	cc, err := tr.NewClientConn(conn)
	if err != nil {
		return fmt.Errorf("h2 connection setup: %w", err)
	}
	defer cc.Close()

	for i := 0; i < frames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := cc.Ping(ctx); err != nil {
			return fmt.Errorf("control flood aborted after %d frames: %w", i, err)
		}
	}
	return nil
}
