package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// Backlog returns the log entries after position pos, in order, and the
// position of the last one returned. It is called from viewer goroutines.
type Backlog func(pos int) ([]Message, int)

// Tail streams an append-only log to viewers. Unlike Hub, nothing is
// queued per viewer: each viewer keeps its own position and reads the
// backlog when woken, so a slow viewer falls behind and catches up but
// never misses an entry.
type Tail struct {
	name    string
	logger  *slog.Logger
	backlog Backlog

	mu      sync.Mutex
	viewers map[chan struct{}]struct{}
	done    chan struct{}
	once    sync.Once
}

// NewTail creates a tail over backlog. name tags its log lines.
func NewTail(name string, backlog Backlog, logger *slog.Logger) *Tail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tail{
		name:    name,
		logger:  logger.With("tail", name),
		backlog: backlog,
		viewers: make(map[chan struct{}]struct{}),
		done:    make(chan struct{}),
	}
}

// Run waits for ctx and then disconnects every viewer.
func (t *Tail) Run(ctx context.Context) {
	<-ctx.Done()
	t.once.Do(func() { close(t.done) })
}

// Notify wakes every viewer after an append. It never blocks.
func (t *Tail) Notify() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for wake := range t.viewers {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// ViewerCount returns the number of connected viewers.
func (t *Tail) ViewerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.viewers)
}

// Serve streams every entry after pos to conn, then follows the log until
// the connection closes or the tail stops.
func (t *Tail) Serve(conn Conn, pos int) {
	select {
	case <-t.done:
		conn.Close()
		return
	default:
	}

	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	t.mu.Lock()
	t.viewers[wake] = struct{}{}
	n := len(t.viewers)
	t.mu.Unlock()
	t.logger.Debug("viewer connected", "viewers", n, "from", pos)

	defer func() {
		t.mu.Lock()
		delete(t.viewers, wake)
		t.mu.Unlock()
	}()

	stop := make(chan struct{})
	written := make(chan struct{})
	go func() {
		defer close(written)
		t.write(conn, wake, stop, pos)
	}()

	readUntilClosed(conn)
	close(stop)
	conn.Close()
	<-written
}

// write is the only writer on conn.
func (t *Tail) write(conn Conn, wake <-chan struct{}, stop <-chan struct{}, pos int) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-stop:
			return

		case <-t.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-wake:
			msgs, next := t.backlog(pos)
			for _, m := range msgs {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(wsType(m), m.Data); err != nil {
					t.logger.Debug("viewer write failed", "pos", pos, "error", err)
					return
				}
			}
			pos = next

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
