package api

import (
	"net/http"
	"strings"

	"github.com/claridad-app/claridad/internal/chat"
	intsync "github.com/claridad-app/claridad/internal/sync"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MessageService serves message history and writes.
type MessageService struct {
	engine *intsync.Engine
	logger *zap.Logger
}

// NewMessageService creates a new message service backed by the engine.
func NewMessageService(engine *intsync.Engine, logger *zap.Logger) *MessageService {
	return &MessageService{engine: engine, logger: logger}
}

// ListMessages handles GET /api/channels/{id}/messages. The response is the
// same ascending snapshot the stream delivers.
func (s *MessageService) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, err := queryLimit(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := s.engine.Snapshot(id)
	if err != nil {
		s.logger.Error("list messages", zap.String("channel_id", id), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: MessagesToWire(msgs)})
}

// SendMessage handles POST /api/channels/{id}/messages.
func (s *MessageService) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req SendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validUser(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}
	typ := chat.MessageType(req.Type)
	if typ == "" {
		typ = chat.TypeNormal
	}
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "unknown message type "+req.Type)
		return
	}

	msg, err := s.engine.Post(chat.NewMessage{
		ChannelID: id,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Text:      text,
		Type:      typ,
		Metadata:  req.Metadata,
	})
	if err != nil {
		s.logger.Warn("send message", zap.String("channel_id", id), zap.String("user_id", req.UserID), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	if typ == chat.TypePanic {
		s.logger.Warn("panic alert", zap.String("channel_id", id), zap.String("user_id", req.UserID), zap.String("msg_id", msg.ID))
	}
	writeJSON(w, http.StatusCreated, MessageToWire(msg))
}

// SearchMessages handles GET /api/channels/{id}/messages/search?q=.
func (s *MessageService) SearchMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryLimit(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.engine.Search(id, q, limit)
	if err != nil {
		s.logger.Error("search messages", zap.String("channel_id", id), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	out := make([]SearchResult, 0, len(results))
	for _, res := range results {
		out = append(out, SearchResult{Message: MessageToWire(res.Message), Snippet: res.Snippet})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}
