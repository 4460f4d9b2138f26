package api

import (
	"net/http"

	intsync "github.com/claridad-app/claridad/internal/sync"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PresenceService serves the typing and online flags of a channel.
type PresenceService struct {
	engine *intsync.Engine
	logger *zap.Logger
}

// NewPresenceService creates a new presence service backed by the engine.
func NewPresenceService(engine *intsync.Engine, logger *zap.Logger) *PresenceService {
	return &PresenceService{engine: engine, logger: logger}
}

func (s *PresenceService) readRequest(w http.ResponseWriter, r *http.Request) (PresenceRequest, bool) {
	var req PresenceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if err := validUser(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// PutTyping handles PUT /api/channels/{id}/typing.
func (s *PresenceService) PutTyping(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.WriteTyping(r.Context(), id, req.UserID, req.UserName, req.Active); err != nil {
		s.logger.Warn("write typing", zap.String("channel_id", id), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTyping handles GET /api/channels/{id}/typing.
func (s *PresenceService) GetTyping(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	list, err := s.engine.ReadTyping(r.Context(), id)
	if err != nil {
		s.logger.Warn("read typing", zap.String("channel_id", id), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TypingResponse{Users: TypingToWire(list)})
}

// PutOnline handles PUT /api/channels/{id}/online.
func (s *PresenceService) PutOnline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.WriteOnline(r.Context(), id, req.UserID, req.UserName, req.Active); err != nil {
		s.logger.Warn("write online", zap.String("channel_id", id), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOnline handles GET /api/channels/{id}/online.
func (s *PresenceService) GetOnline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	list, err := s.engine.ReadOnline(r.Context(), id)
	if err != nil {
		s.logger.Warn("read online", zap.String("channel_id", id), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OnlineResponse{Users: OnlineToWire(list)})
}
