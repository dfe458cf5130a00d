package remote

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType advertises the remote telemetry port, following the
// teacher's cmd/can-server/mdns.go.
const mdnsServiceType = "_rforge-telemetry._tcp"

// AdvertiseMDNS registers the remote telemetry service via mDNS and returns
// a cleanup function. Safe to call with enable=false (no-op).
func AdvertiseMDNS(ctx context.Context, enable bool, name string, port int, meta []string) (func(), error) {
	if !enable {
		return func() {}, nil
	}
	instance := name
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("acquisitiond-%s", host)
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
