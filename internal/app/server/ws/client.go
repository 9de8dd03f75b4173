package ws

import (
	"fmt"
	"sync"
	"sync/atomic"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RuntimeClient is the session handle of one connection. Frames are queued
// on a bounded channel and written by a single goroutine; a full queue is a
// delivery failure, never a wait.
type RuntimeClient struct {
	id        uuid.UUID
	principal *domain.Principal
	conn      *Conn
	out       chan []byte
	done      chan struct{}
	seq       atomic.Uint64
	once      sync.Once
	limiter   *rate.Limiter
}

func NewClient(conn *Conn, p *domain.Principal, buffer int, limit rate.Limit, burst int) *RuntimeClient {
	c := &RuntimeClient{
		id:        uuid.New(),
		principal: p,
		conn:      conn,
		out:       make(chan []byte, buffer),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(limit, burst),
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) ID() uuid.UUID                { return c.id }
func (c *RuntimeClient) Principal() *domain.Principal { return c.principal }
func (c *RuntimeClient) Seq() uint64                  { return c.seq.Load() }

func (c *RuntimeClient) Send(frame []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: handle closed", domain.ErrDeliveryFailure)
	default:
	}
	select {
	case c.out <- frame:
		c.seq.Add(1)
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", domain.ErrDeliveryFailure)
	}
}

// Allow reports whether another inbound frame fits the flood guard.
func (c *RuntimeClient) Allow() bool {
	return c.limiter.Allow()
}

// Done is closed once the handle is closed.
func (c *RuntimeClient) Done() <-chan struct{} { return c.done }

func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			if err := c.conn.WriteMessage(frame); err != nil {
				c.Close()
				return
			}
		}
	}
}
