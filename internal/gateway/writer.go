package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/callbridge/internal/observability"
)

var errWriterClosed = errors.New("telephony writer closed")

const (
	writeQueueSize = 64
	writeDeadline  = 10 * time.Second
)

// connWriter keeps websocket writes single-threaded: frames are queued and a
// single pump goroutine writes them in order. Overflow drops the frame rather
// than block the live read loop.
type connWriter struct {
	conn      *websocket.Conn
	metrics   *observability.Metrics
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnWriter(conn *websocket.Conn, metrics *observability.Metrics) *connWriter {
	return &connWriter{
		conn:    conn,
		metrics: metrics,
		frames:  make(chan []byte, writeQueueSize),
		done:    make(chan struct{}),
	}
}

func (w *connWriter) run() {
	for {
		select {
		case <-w.done:
			return
		case data := <-w.frames:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// The read loop sees the closed conn and drives teardown.
				w.Close()
				return
			}
		}
	}
}

func (w *connWriter) WriteFrame(data []byte) error {
	select {
	case <-w.done:
		return errWriterClosed
	default:
	}
	select {
	case w.frames <- data:
		return nil
	case <-w.done:
		return errWriterClosed
	default:
		w.metrics.MediaFrames.WithLabelValues("outbound_dropped").Inc()
		return nil
	}
}

func (w *connWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
	return nil
}
