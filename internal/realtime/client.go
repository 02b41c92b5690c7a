package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/craftflow-backend/internal/workflow"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timed out")
)

// Connection is one subscriber's outbound event stream.
//
// Outbound is never closed: closing is signalled through Done, so a late
// publisher can never panic on a closed channel.
type Connection struct {
	ID        uuid.UUID
	Key       string
	UserID    int64
	ProjectID int64
	CreatedAt time.Time

	outbound  chan workflow.ProgressEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(key string, projectID, userID int64, buffer int, now time.Time) *Connection {
	return &Connection{
		ID:        uuid.New(),
		Key:       key,
		UserID:    userID,
		ProjectID: projectID,
		CreatedAt: now,
		outbound:  make(chan workflow.ProgressEvent, buffer),
		done:      make(chan struct{}),
	}
}

func (c *Connection) Outbound() <-chan workflow.ProgressEvent { return c.outbound }

func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) close() bool {
	closed := false
	c.closeOnce.Do(func() {
		close(c.done)
		closed = true
	})
	return closed
}

// enqueue waits at most wait for buffer space.
func (c *Connection) enqueue(ev workflow.ProgressEvent, wait time.Duration) error {
	if c.Closed() {
		return ErrConnectionClosed
	}
	select {
	case c.outbound <- ev:
		return nil
	default:
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case c.outbound <- ev:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-t.C:
		return ErrSendTimeout
	}
}
