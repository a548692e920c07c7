package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	// outboundBufferSize is the per-session queue between the hub and the
	// write pump. A full queue counts as a delivery failure.
	outboundBufferSize = 32

	// writeTimeout bounds a single WebSocket write.
	writeTimeout = 5 * time.Second
)

// session is one observer WebSocket connection. It satisfies the hub's sink
// contract: Send never blocks, it only enqueues.
type session struct {
	conn       *websocket.Conn
	connID     string
	remoteAddr string

	out    chan string
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newSession(ctx context.Context, conn *websocket.Conn, remoteAddr string) *session {
	sctx, cancel := context.WithCancel(ctx)
	return &session{
		conn:       conn,
		connID:     uuid.New().String(),
		remoteAddr: remoteAddr,
		out:        make(chan string, outboundBufferSize),
		ctx:        sctx,
		cancel:     cancel,
	}
}

// Send enqueues text for delivery. It returns an error when the session is
// closed or its outbound queue is full; the hub removes the session on error.
func (s *session) Send(text string) error {
	select {
	case <-s.ctx.Done():
		return fmt.Errorf("session %s closed", s.connID)
	case s.out <- text:
		return nil
	default:
		return fmt.Errorf("session %s: outbound queue full", s.connID)
	}
}

// close tears the session down. Safe to call from any goroutine, any number
// of times.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
}

// writePump drains the outbound queue onto the wire. A failed write closes
// the session.
func (s *session) writePump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.out:
			wctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := s.conn.Write(wctx, websocket.MessageText, []byte(text))
			cancel()
			if err != nil {
				s.close()
				return
			}
		}
	}
}

// keepaliveLoop pings the peer at interval and closes the session when a
// ping goes unanswered past timeout.
func (s *session) keepaliveLoop(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(s.ctx, timeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.close()
				return
			}
		}
	}
}
