package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	bus.Publish(Event{Type: GuildJoined, GuildID: "g1"})

	select {
	case ev := <-ch:
		if ev.Type != GuildJoined || ev.GuildID != "g1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(1)
	unsub()

	// Publish is synchronous; nothing may have landed in the buffer.
	bus.Publish(Event{Type: GuildRemoved, GuildID: "g1"})
	select {
	case ev := <-ch:
		t.Fatalf("event delivered after unsubscribe: %+v", ev)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	t.Parallel()
	bus := New()
	_, unsub := bus.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Buffer of one; the second publish must drop rather than block.
		bus.Publish(Event{Type: GuildJoined, GuildID: "g1"})
		bus.Publish(Event{Type: GuildJoined, GuildID: "g2"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
