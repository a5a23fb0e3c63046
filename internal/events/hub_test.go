package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lupppig/notifyflow/internal/domain"
)

func outcome(id string, ch domain.Channel, status domain.Status) Outcome {
	return Outcome{NotificationID: id, Channel: ch, Status: status, Attempts: 1, Timestamp: time.Now()}
}

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub()

	sub := NewSubscriber("", "", 10)
	hub.Subscribe(sub)

	o := outcome("ntf_1", domain.ChannelEmail, domain.StatusSuccess)
	hub.Publish(o)

	select {
	case received := <-sub.Events:
		if received.NotificationID != o.NotificationID {
			t.Errorf("expected notification ID %s, got %s", o.NotificationID, received.NotificationID)
		}
		if received.Status != o.Status {
			t.Errorf("expected status %s, got %s", o.Status, received.Status)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for outcome")
	}
}

func TestHubSubscriberIDsAreUnique(t *testing.T) {
	a := NewSubscriber("", "", 1)
	b := NewSubscriber("", "", 1)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct subscriber IDs, got %q and %q", a.ID, b.ID)
	}
}

func TestHubFilterByNotificationID(t *testing.T) {
	hub := NewHub()

	sub := NewSubscriber("", "ntf_target", 10)
	hub.Subscribe(sub)

	hub.Publish(outcome("ntf_target", domain.ChannelSMS, domain.StatusFailed))
	hub.Publish(outcome("ntf_other", domain.ChannelSMS, domain.StatusFailed))

	select {
	case received := <-sub.Events:
		if received.NotificationID != "ntf_target" {
			t.Errorf("expected ntf_target, got %s", received.NotificationID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for matching outcome")
	}

	select {
	case <-sub.Events:
		t.Error("should not receive non-matching outcome")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubFilterByChannel(t *testing.T) {
	hub := NewHub()

	sub := NewSubscriber(domain.ChannelPush, "", 10)
	hub.Subscribe(sub)

	hub.Publish(outcome("ntf_1", domain.ChannelEmail, domain.StatusSuccess))
	hub.Publish(outcome("ntf_2", domain.ChannelPush, domain.StatusSuccess))

	select {
	case received := <-sub.Events:
		if received.Channel != domain.ChannelPush {
			t.Errorf("expected PUSH, got %s", received.Channel)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for matching outcome")
	}

	select {
	case <-sub.Events:
		t.Error("should not receive outcome for another channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()

	sub := NewSubscriber("", "", 10)
	hub.Subscribe(sub)

	if hub.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	hub.Unsubscribe(sub.ID)

	if hub.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", hub.SubscriberCount())
	}

	if _, ok := <-sub.Events; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestHubNonBlockingPublish(t *testing.T) {
	hub := NewHub()

	sub := NewSubscriber("", "", 1)
	hub.Subscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = hub.Handle(context.Background(), Outcome{NotificationID: "ntf", Attempts: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	if len(sub.Events) != 1 {
		t.Errorf("expected one buffered outcome, got %d", len(sub.Events))
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := NewSubscriber("", "", 100)
			hub.Subscribe(sub)
			time.Sleep(10 * time.Millisecond)
			hub.Unsubscribe(sub.ID)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				hub.Publish(Outcome{NotificationID: "concurrent-test"})
			}
		}()
	}
	wg.Wait()
}

func BenchmarkHubPublishManySubscribers(b *testing.B) {
	hub := NewHub()
	for i := 0; i < 100; i++ {
		hub.Subscribe(NewSubscriber("", "", 1000))
	}

	o := outcome("bench", domain.ChannelEmail, domain.StatusSuccess)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Publish(o)
	}
}
