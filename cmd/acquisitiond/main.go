// Command acquisitiond is the host-side acquisition daemon: it opens a
// serial link to a microcontroller, decodes the R-Forge wire protocol, and
// fans out decoded frames to an optional remote telemetry mirror and an
// optional Redis mirror, following the teacher's cmd/can-server/main.go
// wiring shape (parseFlags -> setupLogger -> build collaborators -> run
// until a shutdown signal).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rforge/acquisitiond/internal/daemon"
	"github.com/rforge/acquisitiond/internal/decode"
	"github.com/rforge/acquisitiond/internal/dispatch"
	"github.com/rforge/acquisitiond/internal/events"
	"github.com/rforge/acquisitiond/internal/metrics"
	"github.com/rforge/acquisitiond/internal/mirror"
	"github.com/rforge/acquisitiond/internal/record"
	"github.com/rforge/acquisitiond/internal/remote"
	"github.com/rforge/acquisitiond/internal/rforge"
	"github.com/rforge/acquisitiond/internal/transport"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("acquisitiond %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	bus := events.New()
	dec := decode.New(decode.DefaultMaxFrames)
	sink := record.New()

	mux := rforge.NewMultiplexer()
	switch cfg.parserMode {
	case "binary":
		mux.SetMode(rforge.Binary)
	case "text":
		mux.SetMode(rforge.Text)
	}

	tr := transport.NewSerialTransport(cfg.serialReadTO)
	if err := tr.Open(transport.Config{
		PortName: cfg.serialDev,
		BaudRate: cfg.baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   0,
	}); err != nil {
		wrapped := fmt.Errorf("%w: %v", daemon.ErrSerialOpen, err)
		metrics.IncError(daemon.MapErrToMetric(wrapped))
		l.Error("serial_open_error", "error", wrapped)
		return
	}
	defer func() { _ = tr.Close() }()
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)

	disp := dispatch.New(tr, mux, bus)

	bus.OnFrameDecoded(func(fr rforge.Frame) { dec.Feed(fr, bus) })

	var recMu sync.Mutex
	if cfg.recordPath != "" {
		if !sink.Start(cfg.recordPath) {
			l.Warn("record_start_failed", "path", cfg.recordPath)
		} else {
			l.Info("record_started", "path", cfg.recordPath)
		}
	}
	bus.OnFrameDecoded(func(fr rforge.Frame) {
		if fr.Cmd != rforge.StreamData {
			return
		}
		recMu.Lock()
		defer recMu.Unlock()
		if sink.Path() == "" {
			return
		}
		ts := uint64(time.Now().UnixMicro())
		sink.AppendChunk(record.RecordChunk{StartTS: ts, EndTS: ts, PackedSamples: fr.Payload})
	})
	defer sink.Close()

	var remoteServer *remote.Server
	if cfg.remoteListen != "" {
		hub := remote.New()
		hub.OutBufSize = cfg.remoteBuffer
		switch cfg.remotePolicy {
		case "kick":
			hub.Policy = remote.PolicyKick
		default:
			hub.Policy = remote.PolicyDrop
		}
		remoteServer = remote.NewServer(cfg.remoteListen, hub)
		remoteServer.HandshakeTimeout = cfg.remoteHandshake
		bus.OnFrameDecoded(func(fr rforge.Frame) { hub.Broadcast(fr) })

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := remoteServer.Serve(ctx); err != nil {
				l.Error("remote_server_error", "error", err)
			}
		}()

		go func() {
			select {
			case <-remoteServer.Ready():
			case <-ctx.Done():
				return
			}
			port := portFromAddr(remoteServer.Addr())
			cleanup, err := remote.AdvertiseMDNS(ctx, cfg.mdnsEnable, cfg.mdnsName, port, []string{"version=" + version})
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
				return
			}
			if cfg.mdnsEnable {
				l.Info("mdns_started", "name", cfg.mdnsName, "port", port)
			}
			go func() { <-ctx.Done(); cleanup() }()
		}()
	}

	if cfg.redisAddr != "" {
		m, err := mirror.New(ctx, cfg.redisAddr, cfg.redisPassword, cfg.redisDB)
		if err != nil {
			l.Warn("redis_mirror_unavailable", "error", err)
		} else {
			m.Attach(bus)
			defer func() { _ = m.Close() }()
			l.Info("redis_mirror_attached", "addr", cfg.redisAddr)
		}
	}

	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		disp.Run(stop)
	}()

	metrics.SetReadinessFunc(func() bool { return tr.IsOpen() && ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	close(stop)
	cancel()
	if remoteServer != nil {
		sdCtx, sdCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = remoteServer.Shutdown(sdCtx)
		sdCancel()
	}
	wg.Wait()
}

// portFromAddr extracts the numeric port from a "host:port" or ":port"
// listener address, following the teacher's cmd/can-server/main.go parsing.
func portFromAddr(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, err := strconv.Atoi(p); err == nil {
			return pn
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if pn, err := strconv.Atoi(addr[i+1:]); err == nil {
			return pn
		}
	}
	return 0
}
