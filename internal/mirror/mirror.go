// Package mirror publishes connection state and decoded channel samples to
// Redis (SPEC_FULL.md "Supplemented component — Redis mirror"), so an
// external dashboard can SUBSCRIBE to the live stream without linking
// against the daemon. Grounded on the teacher corpus's
// librescoot-bluetooth-service pkg/redis/client.go
// (HSet+Publish-in-a-pipeline "write and publish" idiom, Subscribe returning
// a channel plus a cancel func), wired to this daemon's own event bus
// instead of vehicle state.
package mirror

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rforge/acquisitiond/internal/decode"
	"github.com/rforge/acquisitiond/internal/events"
	"github.com/rforge/acquisitiond/internal/logging"
	"github.com/rforge/acquisitiond/internal/transport"
)

const (
	// stateKey is the Redis hash holding the last-known connection state.
	stateKey = "acquisitiond:state"
	// channelsKey is the Redis hash holding the last-known value per channel.
	channelsKey = "acquisitiond:channels"
	// stateChannel is the pub/sub channel connection-state changes publish to.
	stateChannel = "acquisitiond:state"
	// samplesChannel is the pub/sub channel each decoded DataFrame publishes to.
	samplesChannel = "acquisitiond:samples"
)

// Mirror writes connection state and decoded samples into Redis and
// publishes them for external subscribers. A nil *Mirror is valid and every
// method on it is a no-op, so callers can wire it unconditionally and only
// construct one when a Redis address is configured.
type Mirror struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to the Redis server at addr (db selects the logical
// database) and verifies reachability with a PING, following the teacher's
// redis.New.
func New(ctx context.Context, addr, password string, db int) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("mirror: connect to redis: %w", err)
	}
	return &Mirror{client: client, ctx: ctx}, nil
}

// Attach subscribes the mirror to bus so every state change and decoded
// frame is pushed to Redis as it happens. Safe to call on a nil *Mirror.
func (m *Mirror) Attach(bus *events.Bus) {
	if m == nil {
		return
	}
	bus.OnStateChanged(func(s transport.State) {
		if err := m.writeState(s); err != nil {
			logging.L().Warn("mirror_write_state_failed", "error", err)
		}
	})
	bus.OnDataFrameReady(func(v any) {
		df, ok := v.(decode.DataFrame)
		if !ok {
			return
		}
		if err := m.writeDataFrame(df); err != nil {
			logging.L().Warn("mirror_write_frame_failed", "error", err)
		}
	})
}

func (m *Mirror) writeState(s transport.State) error {
	if m == nil {
		return nil
	}
	pipe := m.client.Pipeline()
	pipe.HSet(m.ctx, stateKey, "status", s.String(), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Publish(m.ctx, stateChannel, s.String())
	_, err := pipe.Exec(m.ctx)
	return err
}

func (m *Mirror) writeDataFrame(df decode.DataFrame) error {
	if m == nil {
		return nil
	}
	pipe := m.client.Pipeline()
	for _, ch := range df.Channels {
		field := strconv.FormatUint(uint64(ch.ChannelID), 10)
		value := strconv.FormatFloat(ch.Value, 'g', -1, 64)
		pipe.HSet(m.ctx, channelsKey, field, value)
	}
	pipe.Publish(m.ctx, samplesChannel, fmt.Sprintf("%d:%d", df.TimestampUS, len(df.Channels)))
	_, err := pipe.Exec(m.ctx)
	return err
}

// Subscribe returns a channel of raw pub/sub messages on the given channel
// name plus a cancel func to stop the subscription, following the teacher's
// Subscribe signature. Returns (nil, func(){}) on a nil *Mirror.
func (m *Mirror) Subscribe(channel string) (<-chan *redis.Message, func()) {
	if m == nil {
		return nil, func() {}
	}
	pubsub := m.client.Subscribe(m.ctx, channel)
	return pubsub.Channel(), func() { _ = pubsub.Close() }
}

// Close closes the underlying Redis connection. Safe to call on a nil
// *Mirror.
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
