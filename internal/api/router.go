package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires every service onto one router.
func NewRouter(ch *ChannelService, msg *MessageService, pr *PresenceService, st *StreamService, logger *zap.Logger) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/channels", ch.ListChannels).Methods(http.MethodGet)
	api.HandleFunc("/channels/join", ch.Join).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/channel", ch.UserChannel).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}", ch.GetChannel).Methods(http.MethodGet)

	api.HandleFunc("/channels/{id}/messages", msg.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}/messages", msg.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/channels/{id}/messages/search", msg.SearchMessages).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}/messages/stream", st.Stream).Methods(http.MethodGet)

	api.HandleFunc("/channels/{id}/typing", pr.GetTyping).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}/typing", pr.PutTyping).Methods(http.MethodPut)
	api.HandleFunc("/channels/{id}/online", pr.GetOnline).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}/online", pr.PutOnline).Methods(http.MethodPut)

	router.Use(accessLog(logger))
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets the websocket upgrader reach the underlying hijacker.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func accessLog(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") != "" {
				// The upgrader needs the raw writer to hijack the connection.
				logger.Debug("http upgrade", zap.String("path", r.URL.Path))
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
