// Package daemon holds the sentinel errors shared by cmd/acquisitiond's
// top-level wiring, grounded on the teacher's internal/server/errors.go
// mapErrToMetric pattern.
package daemon

import (
	"errors"

	"github.com/rforge/acquisitiond/internal/metrics"
)

var (
	ErrSerialOpen = errors.New("serial_open")
	ErrRecordOpen = errors.New("record_open")
	ErrConfig     = errors.New("config")
)

// MapErrToMetric maps a wrapped sentinel error to a metrics label, falling
// back to "other" for anything not recognized.
func MapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrSerialOpen):
		return metrics.ErrTransportOpen
	case errors.Is(err, ErrRecordOpen):
		return metrics.ErrRecordWrite
	default:
		return "other"
	}
}
