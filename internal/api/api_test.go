package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/claridad-app/claridad/internal/bus"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/store"
	intsync "github.com/claridad-app/claridad/internal/sync"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func testRouter(t *testing.T) (http.Handler, *intsync.Engine) {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	engine := intsync.NewEngine(db, store.NewPresence(db, 10*time.Second, time.Minute), bus.New(), logger)
	router := NewRouter(
		NewChannelService(engine, logger),
		NewMessageService(engine, logger),
		NewPresenceService(engine, logger),
		NewStreamService(engine, logger),
		logger,
	)
	return router, engine
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJoinAndResolve(t *testing.T) {
	h, _ := testRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/api/users/A/channel", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unassigned user status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/channels/join", JoinRequest{Neighborhood: "Palermo", UserID: "A", UserName: "Ana"})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d: %s", rec.Code, rec.Body)
	}
	var ch Channel
	if err := json.NewDecoder(rec.Body).Decode(&ch); err != nil {
		t.Fatal(err)
	}
	if ch.ID != "chat_palermo" || ch.Neighborhood != "Palermo" || len(ch.Participants) != 1 {
		t.Errorf("channel = %+v", ch)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/users/A/channel", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("resolve status = %d", rec.Code)
	}
}

func TestJoinValidation(t *testing.T) {
	h, _ := testRouter(t)
	tests := []struct {
		name string
		body any
	}{
		{"blank neighborhood", JoinRequest{Neighborhood: " ", UserID: "A"}},
		{"bad user id", JoinRequest{Neighborhood: "Palermo", UserID: "a/b"}},
		{"not json", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/channels/join", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	h, _ := testRouter(t)
	doJSON(t, h, http.MethodPost, "/api/channels/join", JoinRequest{Neighborhood: "Palermo", UserID: "A", UserName: "Ana"})

	tests := []struct {
		name string
		path string
		body SendRequest
		want int
	}{
		{"ok", "/api/channels/chat_palermo/messages", SendRequest{UserID: "A", UserName: "Ana", Text: "hola"}, http.StatusCreated},
		{"panic", "/api/channels/chat_palermo/messages", SendRequest{UserID: "A", Text: "ayuda", Type: "panic"}, http.StatusCreated},
		{"empty", "/api/channels/chat_palermo/messages", SendRequest{UserID: "A", Text: "   "}, http.StatusBadRequest},
		{"bad type", "/api/channels/chat_palermo/messages", SendRequest{UserID: "A", Text: "x", Type: "shout"}, http.StatusBadRequest},
		{"outsider", "/api/channels/chat_palermo/messages", SendRequest{UserID: "Z", Text: "x"}, http.StatusForbidden},
		{"unknown channel", "/api/channels/chat_nowhere/messages", SendRequest{UserID: "A", Text: "x"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	rec := doJSON(t, h, http.MethodGet, "/api/channels/chat_palermo/messages", nil)
	var resp MessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Text != "hola" || resp.Messages[1].Type != "panic" {
		t.Errorf("messages = %+v", resp.Messages)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/channels/chat_palermo/messages?limit=1", nil)
	resp = MessagesResponse{}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Messages) != 1 || resp.Messages[0].Text != "ayuda" {
		t.Errorf("limited messages = %+v", resp.Messages)
	}
}

func TestSearch(t *testing.T) {
	h, _ := testRouter(t)
	doJSON(t, h, http.MethodPost, "/api/channels/join", JoinRequest{Neighborhood: "Palermo", UserID: "A"})
	doJSON(t, h, http.MethodPost, "/api/channels/chat_palermo/messages", SendRequest{UserID: "A", Text: "auto sospechoso en la esquina"})

	rec := doJSON(t, h, http.MethodGet, "/api/channels/chat_palermo/messages/search?q=sospechoso", nil)
	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || !strings.Contains(resp.Results[0].Snippet, "<<sospechoso>>") {
		t.Errorf("results = %+v", resp.Results)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/channels/chat_palermo/messages/search", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("search without q status = %d, want 400", rec.Code)
	}
}

func TestPresenceEndpoints(t *testing.T) {
	h, _ := testRouter(t)

	rec := doJSON(t, h, http.MethodPut, "/api/channels/chat_palermo/online", PresenceRequest{UserID: "A", UserName: "Ana", Active: true})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put online status = %d", rec.Code)
	}
	doJSON(t, h, http.MethodPut, "/api/channels/chat_palermo/typing", PresenceRequest{UserID: "A", UserName: "Ana", Active: true})

	rec = doJSON(t, h, http.MethodGet, "/api/channels/chat_palermo/online", nil)
	var online OnlineResponse
	_ = json.NewDecoder(rec.Body).Decode(&online)
	if len(online.Users) != 1 || online.Users[0].UserName != "Ana" {
		t.Errorf("online = %+v", online.Users)
	}

	doJSON(t, h, http.MethodPut, "/api/channels/chat_palermo/typing", PresenceRequest{UserID: "A", Active: false})
	rec = doJSON(t, h, http.MethodGet, "/api/channels/chat_palermo/typing", nil)
	var typing TypingResponse
	_ = json.NewDecoder(rec.Body).Decode(&typing)
	if typing.Users == nil || len(typing.Users) != 0 {
		t.Errorf("typing = %#v, want empty list", typing.Users)
	}
}

func TestHealthz(t *testing.T) {
	h, _ := testRouter(t)
	if rec := doJSON(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestStreamDeliversSnapshots(t *testing.T) {
	h, engine := testRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	if _, err := engine.Join("Palermo", "A", "Ana"); err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/channels/chat_palermo/messages/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame StreamFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != FrameSnapshot || len(frame.Messages) != 0 {
		t.Fatalf("initial frame = %+v", frame)
	}

	if _, err := engine.Post(chat.NewMessage{ChannelID: "chat_palermo", UserID: "A", UserName: "Ana", Text: "hola"}); err != nil {
		t.Fatal(err)
	}
	frame = StreamFrame{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != FrameSnapshot || len(frame.Messages) != 1 || frame.Messages[0].Text != "hola" {
		t.Errorf("frame after post = %+v", frame)
	}
}

func TestStreamUnknownChannel(t *testing.T) {
	h, _ := testRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/channels/chat_nowhere/messages/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial should fail for an unknown channel")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}
