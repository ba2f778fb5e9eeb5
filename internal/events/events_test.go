package events

import (
	"os"
	"testing"
	"time"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe(Topic)

	evt := New(TaskDispatched, map[string]any{"taskId": "t1"})
	b.Publish(Topic, evt)
	b.Publish("other", New("ignored", nil))

	select {
	case got := <-ch:
		if got.Type != TaskDispatched || got.ID != evt.ID {
			t.Fatalf("got %+v", got)
		}
		if got.Data["taskId"] != "t1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(Topic, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// second unsubscribe must not close twice
	b.Unsubscribe(Topic, ch)
}

func TestMemorySlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe(Topic)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Topic, New(TaskQueued, nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer holds %d of %d", len(ch), cap(ch))
	}
}

func TestRedisBroker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	b, err := NewRedisBroker(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	ch := b.Subscribe(Topic)
	defer b.Unsubscribe(Topic, ch)

	b.Publish(Topic, New(TaskCompleted, map[string]any{"executorId": "v1"}))
	select {
	case got := <-ch:
		if got.Type != TaskCompleted || got.Data["executorId"] != "v1" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}
}
