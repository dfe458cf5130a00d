package events

import (
	"errors"
	"testing"

	"github.com/rforge/acquisitiond/internal/rforge"
	"github.com/rforge/acquisitiond/internal/transport"
)

func TestBusFrameDeliveryInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	b.OnFrameDecoded(func(rforge.Frame) { order = append(order, 1) })
	b.OnFrameDecoded(func(rforge.Frame) { order = append(order, 2) })
	b.OnFrameDecoded(func(rforge.Frame) { order = append(order, 3) })

	b.PublishFrameDecoded(rforge.Frame{Cmd: rforge.Ping})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("handlers fired out of registration order: %v", order)
	}
}

func TestBusStateChanged(t *testing.T) {
	b := New()
	var got transport.State = -1
	b.OnStateChanged(func(s transport.State) { got = s })
	b.PublishStateChanged(transport.Connected)
	if got != transport.Connected {
		t.Fatalf("got state %v, want Connected", got)
	}
}

func TestBusError(t *testing.T) {
	b := New()
	want := errors.New("boom")
	var got error
	b.OnError(func(err error) { got = err })
	b.PublishError(want)
	if !errors.Is(got, want) {
		t.Fatalf("got error %v, want %v", got, want)
	}
}

func TestBusDataFrameReady(t *testing.T) {
	b := New()
	var calls int
	b.OnDataFrameReady(func(any) { calls++ })
	b.PublishDataFrameReady(struct{ X int }{X: 1})
	b.PublishDataFrameReady(struct{ X int }{X: 2})
	if calls != 2 {
		t.Fatalf("got %d calls, want 2", calls)
	}
}

func TestBusNoSubscribersDoesNotPanic(t *testing.T) {
	b := New()
	b.PublishFrameDecoded(rforge.Frame{})
	b.PublishStateChanged(transport.Disconnected)
	b.PublishError(errors.New("x"))
	b.PublishDataFrameReady(nil)
}
