package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// hello is the remote telemetry protocol's handshake token, generalized
// from the teacher's cannelloni "CANNELLONIv1" (internal/cnl/handshake.go)
// to this daemon's own wire protocol.
const hello = "RFORGEv1"

// Handshake exchanges the hello token with c, failing if either side's
// token doesn't match or timeout elapses.
func Handshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer c.SetDeadline(time.Time{})

	errCh := make(chan error, 2)

	go func() {
		_, err := io.WriteString(c, hello)
		errCh <- err
	}()

	go func() {
		buf := make([]byte, len(hello))
		_, err := io.ReadFull(c, buf)
		if err == nil && string(buf) != hello {
			err = errors.New("bad hello")
		}
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
		}
	}
	return nil
}
