package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(TopicInteraction, 4)
	defer unsubscribe()

	b.Publish(Event{Topic: TopicInteraction, Data: "click"})

	select {
	case e := <-ch:
		if e.Topic != TopicInteraction {
			t.Errorf("expected topic %q, got %q", TopicInteraction, e.Topic)
		}
		if e.Data != "click" {
			t.Errorf("expected data 'click', got %v", e.Data)
		}
		if e.Time.IsZero() {
			t.Error("event time not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestTopicFiltering(t *testing.T) {
	b := New()
	receipts, unsub1 := b.Subscribe(TopicReadReceipt, 4)
	defer unsub1()
	all, unsub2 := b.Subscribe("", 4)
	defer unsub2()

	b.Publish(Event{Topic: TopicInteraction})

	select {
	case <-receipts:
		t.Error("receipt subscriber received an interaction event")
	default:
	}

	select {
	case e := <-all:
		if e.Topic != TopicInteraction {
			t.Errorf("wildcard subscriber got topic %q", e.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber received nothing")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	_, unsubscribe := b.Subscribe(TopicNotification, 1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Topic: TopicNotification, Data: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(TopicInteraction, 1)

	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Topic: TopicInteraction})
}
