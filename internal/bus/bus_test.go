package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageWritten, Topic: "chat_palermo", Timestamp: time.Now(), Payload: "m1"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageWritten {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessageWritten)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageWritten})
	b.Publish(Event{Kind: KindTypingChanged})

	select {
	case evt := <-ch:
		if evt.Kind != KindTypingChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindTypingChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTopicFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeTopic("message.", "chat_palermo", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageWritten, Topic: "chat_belgrano"})
	b.Publish(Event{Kind: KindMessageWritten, Topic: "chat_palermo"})
	// Untopiced events reach everyone in the namespace.
	b.Publish(Event{Kind: KindMessageWritten})

	for _, want := range []string{"chat_palermo", ""} {
		select {
		case evt := <-ch:
			if evt.Topic != want {
				t.Errorf("got topic %q, want %q", evt.Topic, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for topic %q", want)
		}
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	unsub()
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d after unsubscribe, want 0", n)
	}

	b.Publish(Event{Kind: KindStatusChanged})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindSnapshot})
	// Dropped, the buffer holds one event.
	b.Publish(Event{Kind: KindSendFailed})

	evt := <-ch
	if evt.Kind != KindSnapshot {
		t.Errorf("got %q, want %s", evt.Kind, KindSnapshot)
	}
}
