package cache

import (
	"context"
	"testing"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(DefaultConfig(), nil, WithClock(clk.Now)), clk
}

func msg(id string, ts int64) chat.Message {
	return chat.Message{ID: id, Text: "text " + id, Timestamp: time.UnixMilli(ts)}
}

func TestAppendMessagesSeedsEmptyCache(t *testing.T) {
	s, _ := testStore(t)

	inserted := s.AppendMessages("chat_palermo", []chat.Message{msg("m1", 1000), msg("m2", 2000)})
	if len(inserted) != 2 {
		t.Fatalf("inserted %d, want 2", len(inserted))
	}
	got, ok := s.Messages("chat_palermo")
	if !ok {
		t.Fatal("Messages() miss after seed")
	}
	if len(got.Messages) != 2 {
		t.Errorf("cached %d messages, want 2", len(got.Messages))
	}
	if !got.LastMessageTimestamp.Equal(time.UnixMilli(2000)) {
		t.Errorf("LastMessageTimestamp = %v, want 2000ms", got.LastMessageTimestamp)
	}
}

func TestAppendMessagesIdempotent(t *testing.T) {
	s, _ := testStore(t)
	s.SetMessages("c", []chat.Message{msg("m1", 1000)})

	batch := []chat.Message{msg("m1", 1000), msg("m2", 2000), msg("m3", 3000)}
	first := s.AppendMessages("c", batch)
	if len(first) != 2 {
		t.Fatalf("first append inserted %d, want 2", len(first))
	}
	second := s.AppendMessages("c", batch)
	if len(second) != 0 {
		t.Errorf("second append inserted %d, want 0", len(second))
	}

	got, _ := s.Messages("c")
	if len(got.Messages) != 3 {
		t.Fatalf("cached %d messages, want 3", len(got.Messages))
	}
	seen := map[string]bool{}
	for _, m := range got.Messages {
		if seen[m.ID] {
			t.Errorf("duplicate id %s", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestAppendMessagesDedupesWithinBatch(t *testing.T) {
	s, _ := testStore(t)
	inserted := s.AppendMessages("c", []chat.Message{msg("m1", 1), msg("m1", 1)})
	if len(inserted) != 1 {
		t.Errorf("inserted %d, want 1", len(inserted))
	}
}

func TestTTLExpiry(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		class Class
		ttl   time.Duration
		write func(s *Store)
		read  func(s *Store) bool
	}{
		{ClassMessages, cfg.MessagesTTL,
			func(s *Store) { s.SetMessages("c", []chat.Message{msg("m1", 1)}) },
			func(s *Store) bool { _, ok := s.Messages("c"); return ok }},
		{ClassChatInfo, cfg.ChatInfoTTL,
			func(s *Store) { s.SetChatInfo("c", chat.Channel{ID: "c"}) },
			func(s *Store) bool { _, ok := s.ChatInfo("c"); return ok }},
		{ClassTyping, cfg.TypingTTL,
			func(s *Store) { s.SetTyping("c", []chat.TypingUser{{UserID: "a"}}) },
			func(s *Store) bool { _, ok := s.Typing("c"); return ok }},
		{ClassOnline, cfg.OnlineTTL,
			func(s *Store) { s.SetOnline("c", []chat.OnlineUser{{UserID: "a"}}) },
			func(s *Store) bool { _, ok := s.Online("c"); return ok }},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			s, clk := testStore(t)
			tt.write(s)

			clk.Advance(tt.ttl - time.Millisecond)
			if !tt.read(s) {
				t.Fatalf("entry missing just before TTL %v", tt.ttl)
			}
			clk.Advance(2 * time.Millisecond)
			if tt.read(s) {
				t.Fatalf("entry still present just after TTL %v", tt.ttl)
			}
		})
	}
}

func TestReadDoesNotRefreshTTL(t *testing.T) {
	s, clk := testStore(t)
	s.SetTyping("c", []chat.TypingUser{{UserID: "a"}})

	for i := 0; i < 4; i++ {
		clk.Advance(3 * time.Second)
		s.Typing("c")
	}
	// 12s after the write, past the 10s typing TTL.
	if _, ok := s.Typing("c"); ok {
		t.Error("reads must not extend the TTL")
	}
}

func TestSetMessagesEmptyHasZeroTimestamp(t *testing.T) {
	s, _ := testStore(t)
	s.SetMessages("c", nil)
	got, ok := s.Messages("c")
	if !ok {
		t.Fatal("empty set should still be cached")
	}
	if !got.LastMessageTimestamp.IsZero() {
		t.Errorf("LastMessageTimestamp = %v, want zero", got.LastMessageTimestamp)
	}
}

func TestShouldUpdateTypingIgnoresOrder(t *testing.T) {
	s, _ := testStore(t)
	if !s.ShouldUpdateTyping("c", nil) {
		t.Error("a miss should count as a change")
	}
	s.SetTyping("c", []chat.TypingUser{{UserID: "a"}, {UserID: "b"}})

	if s.ShouldUpdateTyping("c", []chat.TypingUser{{UserID: "b", UserName: "Beto"}, {UserID: "a"}}) {
		t.Error("same set in another order should not be a change")
	}
	if !s.ShouldUpdateTyping("c", []chat.TypingUser{{UserID: "a"}}) {
		t.Error("smaller set should be a change")
	}
}

func TestShouldUpdateOnline(t *testing.T) {
	s, _ := testStore(t)
	s.SetOnline("c", []chat.OnlineUser{{UserID: "a"}, {UserID: "b"}})
	if s.ShouldUpdateOnline("c", []chat.OnlineUser{{UserID: "b"}, {UserID: "a"}}) {
		t.Error("identical set should not be a change")
	}
	if !s.ShouldUpdateOnline("c", []chat.OnlineUser{{UserID: "a"}, {UserID: "c"}}) {
		t.Error("different set should be a change")
	}
}

func TestInvalidateAndClear(t *testing.T) {
	s, _ := testStore(t)
	for _, ch := range []string{"c1", "c2"} {
		s.SetMessages(ch, []chat.Message{msg("m", 1)})
		s.SetChatInfo(ch, chat.Channel{ID: ch})
		s.SetTyping(ch, []chat.TypingUser{{UserID: "a"}})
		s.SetOnline(ch, []chat.OnlineUser{{UserID: "a"}})
	}

	s.Invalidate("c1")
	if got := s.Stats(); got != (Stats{Messages: 1, ChatInfo: 1, Typing: 1, Online: 1}) {
		t.Errorf("after Invalidate stats = %+v", got)
	}

	s.Clear(ClassTyping)
	if got := s.Stats(); got.Typing != 0 || got.Messages != 1 {
		t.Errorf("after Clear(typing) stats = %+v", got)
	}

	s.Clear(ClassAll)
	if got := s.Stats(); got != (Stats{}) {
		t.Errorf("after Clear(all) stats = %+v", got)
	}
}

func TestInvalidateUser(t *testing.T) {
	s, _ := testStore(t)
	for _, ch := range []string{"chat_palermo", "chat_recoleta"} {
		s.SetMessages(ch, []chat.Message{msg("m", 1)})
		s.SetChatInfo(ch, chat.Channel{ID: ch})
	}
	s.SetChatInfo(UserChannelKey("A"), chat.Channel{ID: "chat_palermo"})

	s.InvalidateUser("A")
	if _, ok := s.ChatInfo(UserChannelKey("A")); ok {
		t.Error("user assignment survived InvalidateUser")
	}
	if _, ok := s.Messages("chat_palermo"); ok {
		t.Error("assigned channel survived InvalidateUser")
	}
	if _, ok := s.Messages("chat_recoleta"); !ok {
		t.Error("unrelated channel was dropped")
	}

	s.InvalidateUser("nobody")
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	s, clk := testStore(t)
	s.SetTyping("c", []chat.TypingUser{{UserID: "a"}})
	s.SetChatInfo("c", chat.Channel{ID: "c"})

	clk.Advance(11 * time.Second)
	s.SetMessages("c", []chat.Message{msg("m", 1)})

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1 (typing only)", n)
	}
	if got := s.Stats(); got != (Stats{Messages: 1, ChatInfo: 1}) {
		t.Errorf("stats after sweep = %+v", got)
	}
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	s, _ := testStore(t)
	s.SetMessages("c", []chat.Message{msg("m1", 1)})
	got, _ := s.Messages("c")
	got.Messages[0].Text = "mutated"

	again, _ := s.Messages("c")
	if again.Messages[0].Text == "mutated" {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestBackgroundSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypingTTL = 10 * time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond
	s := New(cfg, nil)
	s.SetTyping("c", []chat.TypingUser{{UserID: "a"}})

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Stats().Typing == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background sweep did not evict the expired typing entry")
}

func TestSetHash(t *testing.T) {
	if SetHash([]string{"b", "a", "a"}) != SetHash([]string{"a", "b"}) {
		t.Error("SetHash should ignore order and repeats")
	}
	if SetHash([]string{"a"}) == SetHash([]string{"a", "b"}) {
		t.Error("SetHash should differ for different sets")
	}
}
