package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/claridad-app/claridad/internal/api"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait  = 70 * time.Second
	writeWait = 10 * time.Second
)

// SubscribeMessages opens the channel's snapshot stream. onSnapshot runs on
// the stream's reader goroutine; onError runs at most once, when the stream
// breaks for any reason other than the returned unsubscribe func.
func (c *Client) SubscribeMessages(ctx context.Context, channelID string, onSnapshot func([]chat.Message), onError func(error)) (func(), error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += channelPath(channelID, "messages", "stream")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.http.Timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Message: "stream rejected"}
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	s := &stream{conn: conn, done: make(chan struct{}), logger: c.logger}
	go s.read(channelID, onSnapshot, onError)
	return s.close, nil
}

type stream struct {
	conn   *websocket.Conn
	done   chan struct{}
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) read(channelID string, onSnapshot func([]chat.Message), onError func(error)) {
	defer close(s.done)

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var frame api.StreamFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !s.isClosed() {
				s.logger.Warn("message stream broke", zap.String("channel_id", channelID), zap.Error(err))
				onError(fmt.Errorf("message stream: %w", err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch frame.Type {
		case api.FrameSnapshot:
			if s.isClosed() {
				return
			}
			onSnapshot(api.MessagesFromWire(frame.Messages))
		case api.FrameError:
			if !s.isClosed() {
				onError(errors.New(frame.Error))
			}
			return
		default:
			s.logger.Debug("unknown stream frame", zap.String("type", frame.Type))
		}
	}
}

// close ends the stream and waits for the reader. It must not be called from
// inside onSnapshot or onError.
func (s *stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = s.conn.Close()
	<-s.done
}
