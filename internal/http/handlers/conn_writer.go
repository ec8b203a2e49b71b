package handlers

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/tipjar/broker/internal/metrics"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// wsConn is the part of *websocket.Conn the writer touches.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// connWriter owns every write to one connection. Frames are queued by Send
// and written by a single goroutine, so the router never blocks on a slow
// client.
type connWriter struct {
	conn     wsConn
	clock    clockwork.Clock
	channel  string
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newConnWriter(conn wsConn, clock clockwork.Clock, channel string, buffer int) *connWriter {
	if buffer <= 0 {
		buffer = 32
	}
	w := &connWriter{
		conn:    conn,
		clock:   clock,
		channel: channel,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
	w.touch()
	conn.SetPongHandler(func(string) error {
		w.touch()
		return nil
	})
	w.wg.Add(1)
	go w.run()
	return w
}

// Send queues data. It reports false if the writer is stopped or the buffer
// is full.
func (w *connWriter) Send(data []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.send <- data:
		return true
	case <-w.done:
		return false
	default:
		metrics.WSSlowConsumers.WithLabelValues(w.channel).Inc()
		return false
	}
}

// touch extends the read deadline after inbound traffic.
func (w *connWriter) touch() {
	_ = w.conn.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}

func (w *connWriter) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.send:
			_ = w.conn.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				w.fail()
				return
			}
		case <-ticker.Chan():
			_ = w.conn.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.fail()
				return
			}
		case <-w.done:
			return
		}
	}
}

// fail closes the connection so the read loop unblocks and reports the
// disconnect.
func (w *connWriter) fail() {
	metrics.WSWriteFailures.WithLabelValues(w.channel).Inc()
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}

// stop closes the connection and waits for the writer. Queued frames are
// discarded.
func (w *connWriter) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
	w.wg.Wait()
}
