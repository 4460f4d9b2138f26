package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/claridad-app/claridad/internal/api"
	"github.com/claridad-app/claridad/internal/bus"
	"github.com/claridad-app/claridad/internal/cache"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/coordinator"
	"github.com/claridad-app/claridad/internal/status"
	"github.com/claridad-app/claridad/internal/store"
	intsync "github.com/claridad-app/claridad/internal/sync"
	"go.uber.org/zap"
)

func testDaemon(t *testing.T) (*Client, *intsync.Engine) {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	engine := intsync.NewEngine(db, store.NewPresence(db, 10*time.Second, time.Minute), bus.New(), logger)
	srv := httptest.NewServer(api.NewRouter(
		api.NewChannelService(engine, logger),
		api.NewMessageService(engine, logger),
		api.NewPresenceService(engine, logger),
		api.NewStreamService(engine, logger),
		logger,
	))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, 5*time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c, engine
}

type recorder struct {
	mu   sync.Mutex
	got  [][]chat.Message
	errs []error
}

func (r *recorder) snapshot(m []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) last() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return nil
	}
	return r.got[len(r.got)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://host", "://nope", "localhost:7420"} {
		if _, err := New(raw, time.Second, nil); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}

func TestResolveUserChannel(t *testing.T) {
	ctx := context.Background()
	c, _ := testDaemon(t)

	ch, err := c.ResolveUserChannel(ctx, "A")
	if err != nil || ch != nil {
		t.Fatalf("ResolveUserChannel(unassigned) = %+v, %v; want nil, nil", ch, err)
	}

	joined, err := c.Join(ctx, "Palermo", "A", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	ch, err = c.ResolveUserChannel(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if ch == nil || ch.ID != joined.ID || !ch.HasParticipant("A") {
		t.Errorf("ResolveUserChannel(A) = %+v", ch)
	}

	if ch, err := c.Channel(ctx, "chat_nowhere"); err != nil || ch != nil {
		t.Errorf("Channel(unknown) = %+v, %v", ch, err)
	}

	all, err := c.Channels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != joined.ID {
		t.Errorf("Channels() = %+v", all)
	}
}

func TestPostAndList(t *testing.T) {
	ctx := context.Background()
	c, _ := testDaemon(t)
	if _, err := c.Join(ctx, "Palermo", "A", "Ana"); err != nil {
		t.Fatal(err)
	}

	md := (*chat.Metadata)(nil).WithLocation(&chat.Location{Lat: -34.58, Lng: -58.42})
	md.Extra = map[string]any{"incidentId": "inc-7"}
	posted, err := c.Post(ctx, chat.NewMessage{ChannelID: "chat_palermo", UserID: "A", UserName: "Ana", Text: "ayuda", Type: chat.TypePanic, Metadata: md})
	if err != nil {
		t.Fatal(err)
	}
	if posted.ID == "" || posted.Timestamp.IsZero() {
		t.Errorf("posted = %+v", posted)
	}

	msgs, err := c.ListMessages(ctx, "chat_palermo", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	got := msgs[0]
	if got.Type != chat.TypePanic || got.Metadata == nil || got.Metadata.Location == nil || got.Metadata.Location.Lat != -34.58 {
		t.Errorf("message = %+v", got)
	}
	if got.Metadata.Extra["incidentId"] != "inc-7" {
		t.Errorf("extra metadata = %v", got.Metadata.Extra)
	}

	results, err := c.Search(ctx, "chat_palermo", "ayu", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("search results = %+v", results)
	}
}

func TestStatusErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := testDaemon(t)

	err := c.WriteMessage(ctx, chat.NewMessage{ChannelID: "chat_nowhere", UserID: "A", Text: "hola"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("error = %v, want 404 StatusError", err)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false")
	}
	if se.Message == "" {
		t.Error("StatusError should carry the daemon's message")
	}
}

func TestPresenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := testDaemon(t)

	if err := c.WriteTyping(ctx, "chat_palermo", "A", "Ana", true); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteOnline(ctx, "chat_palermo", "B", "Beto", true); err != nil {
		t.Fatal(err)
	}
	typing, err := c.ReadTyping(ctx, "chat_palermo")
	if err != nil {
		t.Fatal(err)
	}
	online, err := c.ReadOnline(ctx, "chat_palermo")
	if err != nil {
		t.Fatal(err)
	}
	if len(typing) != 1 || typing[0].UserID != "A" || typing[0].LastUpdated.IsZero() {
		t.Errorf("typing = %+v", typing)
	}
	if len(online) != 1 || online[0].UserName != "Beto" {
		t.Errorf("online = %+v", online)
	}
}

func TestSubscribeMessages(t *testing.T) {
	ctx := context.Background()
	c, engine := testDaemon(t)
	if _, err := c.Join(ctx, "Palermo", "A", "Ana"); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	unsub, err := c.SubscribeMessages(ctx, "chat_palermo", rec.snapshot, rec.fail)
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "initial snapshot", func() bool { return rec.count() == 1 })

	if _, err := engine.Post(chat.NewMessage{ChannelID: "chat_palermo", UserID: "A", Text: "hola"}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "snapshot with the new message", func() bool { return len(rec.last()) == 1 })

	unsub()
	unsub()
	if n := rec.failures(); n != 0 {
		t.Errorf("onError called %d times after a clean unsubscribe", n)
	}
}

func TestSubscribeUnknownChannel(t *testing.T) {
	c, _ := testDaemon(t)
	_, err := c.SubscribeMessages(context.Background(), "chat_nowhere", func([]chat.Message) {}, func(error) {})
	if !IsNotFound(err) {
		t.Errorf("error = %v, want 404", err)
	}
}

// TestCoordinatorOverHTTP runs two sessions against one daemon.
func TestCoordinatorOverHTTP(t *testing.T) {
	ctx := context.Background()
	c, _ := testDaemon(t)
	_, _ = c.Join(ctx, "Palermo", "A", "Ana")
	_, _ = c.Join(ctx, "Palermo", "B", "Beto")

	session := func(id chat.Identity) (*coordinator.Coordinator, *recorder) {
		co := coordinator.New(c, cache.New(cache.DefaultConfig(), nil), bus.New(), coordinator.DefaultConfig(), nil)
		rec := &recorder{}
		co.OnMessages(rec.snapshot)
		if err := co.Initialize(ctx, id); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { co.Cleanup(ctx) })
		return co, rec
	}
	a, recA := session(chat.Identity{UserID: "A", UserName: "Ana"})
	b, recB := session(chat.Identity{UserID: "B", UserName: "Beto"})
	if a.Status() != status.Joined || b.Status() != status.Joined {
		t.Fatalf("status = %s / %s, want JOINED", a.Status(), b.Status())
	}

	eventually(t, "initial snapshots", func() bool { return recA.count() > 0 && recB.count() > 0 })
	if err := a.SendMessage(ctx, "hola", chat.TypeNormal, nil); err != nil {
		t.Fatal(err)
	}
	eventually(t, "both sessions see the message", func() bool {
		return len(recA.last()) == 1 && len(recB.last()) == 1
	})
	if !recA.last()[0].IsOwn || recB.last()[0].IsOwn {
		t.Errorf("IsOwn A=%v B=%v, want true/false", recA.last()[0].IsOwn, recB.last()[0].IsOwn)
	}

	if err := b.StartTyping(ctx); err != nil {
		t.Fatal(err)
	}
	var typing []chat.TypingUser
	a.OnTyping(func(list []chat.TypingUser) { typing = list })
	if err := a.RefreshTyping(ctx); err != nil {
		t.Fatal(err)
	}
	if len(typing) != 1 || typing[0].UserID != "B" {
		t.Errorf("typing seen by A = %+v", typing)
	}
}
