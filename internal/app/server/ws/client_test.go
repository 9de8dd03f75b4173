package ws

import (
	"errors"
	"testing"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// bareClient has no connection and no write loop, so queued frames stay put.
func bareClient(buffer int) *RuntimeClient {
	return &RuntimeClient{
		id:      uuid.New(),
		out:     make(chan []byte, buffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

func TestSendFullBuffer(t *testing.T) {
	c := bareClient(2)
	for i := 0; i < 2; i++ {
		if err := c.Send([]byte("x")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := c.Send([]byte("x")); !errors.Is(err, domain.ErrDeliveryFailure) {
		t.Fatalf("send on full buffer: err = %v, want ErrDeliveryFailure", err)
	}
	if c.Seq() != 2 {
		t.Errorf("seq = %d, want 2", c.Seq())
	}
}

func TestSendAfterClose(t *testing.T) {
	c := bareClient(4)
	close(c.done)
	if err := c.Send([]byte("x")); !errors.Is(err, domain.ErrDeliveryFailure) {
		t.Fatalf("send on closed handle: err = %v", err)
	}
	if len(c.out) != 0 {
		t.Errorf("frame queued on a closed handle")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestAllowBurst(t *testing.T) {
	c := bareClient(1)
	if !c.Allow() || !c.Allow() {
		t.Fatal("burst of 2 refused")
	}
	if c.Allow() {
		t.Error("third frame inside the same instant allowed")
	}
}
