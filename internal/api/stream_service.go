package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
	intsync "github.com/claridad-app/claridad/internal/sync"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// StreamService pushes full message snapshots of a channel over WebSocket.
type StreamService struct {
	engine   *intsync.Engine
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewStreamService creates a new stream service backed by the engine.
func NewStreamService(engine *intsync.Engine, logger *zap.Logger) *StreamService {
	return &StreamService{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// latest holds the newest undelivered snapshot. A slow connection skips
// intermediate snapshots instead of queueing them.
type latest struct {
	mu      sync.Mutex
	pending []chat.Message
	has     bool
	notify  chan struct{}
}

func newLatest() *latest {
	return &latest{notify: make(chan struct{}, 1)}
}

func (l *latest) put(msgs []chat.Message) {
	l.mu.Lock()
	l.pending = msgs
	l.has = true
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *latest) take() ([]chat.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs, ok := l.pending, l.has
	l.pending, l.has = nil, false
	return msgs, ok
}

// Stream handles GET /api/channels/{id}/messages/stream.
func (s *StreamService) Stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ch, err := s.engine.Channel(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	box := newLatest()
	failed := make(chan error, 1)
	unsub, err := s.engine.SubscribeMessages(ctx, id, box.put, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	if err != nil {
		s.logger.Error("subscribe failed", zap.String("channel_id", id), zap.Error(err))
		_ = s.write(conn, StreamFrame{Type: FrameError, Error: "subscription failed"})
		return
	}
	defer unsub()

	s.logger.Debug("stream opened", zap.String("channel_id", id), zap.String("remote", r.RemoteAddr))
	go s.readPump(conn, cancel)
	s.writePump(ctx, conn, box, failed)
	s.logger.Debug("stream closed", zap.String("channel_id", id), zap.String("remote", r.RemoteAddr))
}

// readPump only services control frames; it cancels ctx once the peer goes
// away.
func (s *StreamService) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Debug("stream read", zap.Error(err))
			}
			return
		}
	}
}

func (s *StreamService) writePump(ctx context.Context, conn *websocket.Conn, box *latest, failed <-chan error) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-box.notify:
			msgs, ok := box.take()
			if !ok {
				continue
			}
			if err := s.write(conn, StreamFrame{Type: FrameSnapshot, Messages: MessagesToWire(msgs)}); err != nil {
				return
			}
		case err := <-failed:
			s.logger.Warn("subscription failed", zap.Error(err))
			_ = s.write(conn, StreamFrame{Type: FrameError, Error: err.Error()})
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *StreamService) write(conn *websocket.Conn, frame StreamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
