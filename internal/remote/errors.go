package remote

import (
	"errors"

	"github.com/rforge/acquisitiond/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is,
// following the teacher's internal/server/errors.go mapErrToMetric pattern.
var (
	ErrListen    = errors.New("listen")
	ErrAccept    = errors.New("accept")
	ErrHandshake = errors.New("handshake")
	ErrConnWrite = errors.New("conn_write")
)

func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrHandshake):
		return metrics.ErrRemoteHandshake
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrRemoteAccept
	default:
		return "other"
	}
}
