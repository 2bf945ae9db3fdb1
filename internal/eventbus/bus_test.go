package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeTopicFiltersByPrefix(t *testing.T) {
	b := New()
	islands, unsubIslands := SubscribeTopic(b, 4, "island.")
	defer unsubIslands()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: WidgetUpdated, Data: 3})
	b.Publish(Event{Type: IslandPosted, Data: "k"})

	select {
	case e := <-islands:
		if e.Type != IslandPosted {
			t.Fatalf("island subscriber got %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("island event not delivered")
	}
	if len(islands) != 0 {
		t.Fatalf("island subscriber received %d extra events", len(islands))
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: IslandPosted})
	b.Publish(Event{Type: IslandUpdated})

	e := <-ch
	if e.Type != IslandPosted {
		t.Fatalf("got %q, want first event retained", e.Type)
	}
	if e.Time.IsZero() {
		t.Fatal("publish should stamp event time")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub()
	b.Publish(Event{Type: IslandRemoved})
}
