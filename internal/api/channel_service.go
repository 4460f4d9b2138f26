package api

import (
	"net/http"
	"strings"

	intsync "github.com/claridad-app/claridad/internal/sync"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ChannelService serves channel membership and metadata.
type ChannelService struct {
	engine *intsync.Engine
	logger *zap.Logger
}

// NewChannelService creates a new channel service backed by the engine.
func NewChannelService(engine *intsync.Engine, logger *zap.Logger) *ChannelService {
	return &ChannelService{engine: engine, logger: logger}
}

// Join handles POST /api/channels/join. The neighborhood channel is created
// on first use.
func (s *ChannelService) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validUser(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserName) == "" {
		req.UserName = req.UserID
	}

	ch, err := s.engine.Join(req.Neighborhood, req.UserID, req.UserName)
	if err != nil {
		s.logger.Warn("join failed", zap.String("user_id", req.UserID), zap.String("neighborhood", req.Neighborhood), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	s.logger.Info("user joined channel", zap.String("user_id", req.UserID), zap.String("channel_id", ch.ID))
	writeJSON(w, http.StatusOK, ChannelToWire(*ch))
}

// UserChannel handles GET /api/users/{id}/channel.
func (s *ChannelService) UserChannel(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if err := validUser(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ch, err := s.engine.ResolveUserChannel(r.Context(), userID)
	if err != nil {
		s.logger.Error("resolve user channel", zap.String("user_id", userID), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "user has no channel")
		return
	}
	writeJSON(w, http.StatusOK, ChannelToWire(*ch))
}

// GetChannel handles GET /api/channels/{id}.
func (s *ChannelService) GetChannel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ch, err := s.engine.Channel(id)
	if err != nil {
		s.logger.Error("get channel", zap.String("channel_id", id), zap.Error(err))
		writeStoreError(w, err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, ChannelToWire(*ch))
}

// ListChannels handles GET /api/channels.
func (s *ChannelService) ListChannels(w http.ResponseWriter, _ *http.Request) {
	channels, err := s.engine.Channels()
	if err != nil {
		s.logger.Error("list channels", zap.Error(err))
		writeStoreError(w, err)
		return
	}
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		out = append(out, ChannelToWire(c))
	}
	writeJSON(w, http.StatusOK, ChannelsResponse{Channels: out})
}
