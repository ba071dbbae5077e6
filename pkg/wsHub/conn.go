package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

const writeWait = 5 * time.Second

var ErrConnClosed = errors.New("connection closed")

// Key identifies the owner of a live channel
type Key struct {
	Kind types.ActorKind
	ID   int64
}

func (k Key) String() string {
	return k.Kind.String() + ":" + strconv.FormatInt(k.ID, 10)
}

// Transport is the subset of *websocket.Conn used by Conn
type Transport interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is a single live channel. Writes are serialized.
type Conn struct {
	key     Key
	t       Transport
	doneCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func NewConn(ctx context.Context, key Key, t Transport) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		key:     key,
		t:       t,
		doneCtx: ctx,
		cancel:  cancel,
	}
}

func (c *Conn) Key() Key {
	return c.key
}

// Done is closed once the connection is closed
func (c *Conn) Done() <-chan struct{} {
	return c.doneCtx.Done()
}

func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.t == nil {
		return ErrConnClosed
	}

	if err := c.t.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.t.WriteJSON(msg); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Listen reads messages until the connection fails, the handler fails or the connection is closed
func (c *Conn) Listen(handler func(raw json.RawMessage) error) error {
	for {
		select {
		case <-c.doneCtx.Done():
			return ErrConnClosed
		default:
		}

		var raw json.RawMessage
		if err := c.t.ReadJSON(&raw); err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if err := handler(raw); err != nil {
			return fmt.Errorf("handler failed: %w", err)
		}
	}
}

// Close is idempotent
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	if c.t != nil {
		return c.t.Close()
	}
	return nil
}
