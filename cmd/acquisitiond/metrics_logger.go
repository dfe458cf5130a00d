package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rforge/acquisitiond/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_decoded", snap.FramesDecoded,
					"crc_errors", snap.CRCErrors,
					"bytes_read", snap.BytesRead,
					"commands_sent", snap.CommandsSent,
					"records_written", snap.RecordsWritten,
					"ring_evictions", snap.RingEvictions,
					"dropped_payloads", snap.DroppedPayloads,
					"remote_clients", snap.RemoteClients,
					"remote_dropped", snap.RemoteDropped,
					"remote_kicked", snap.RemoteKicked,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
