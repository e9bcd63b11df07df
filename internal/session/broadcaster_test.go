package session

import "testing"

func TestBroadcaster_SendReachesAllListeners(t *testing.T) {
	b := NewBroadcaster()
	a, c := b.Subscribe(), b.Subscribe()

	b.Send(Update{Type: UpdateStatusMessage, Message: "hi"})

	for _, sub := range []*Subscription{a, c} {
		select {
		case u := <-sub.C:
			if u.Message != "hi" {
				t.Errorf("unexpected update %+v", u)
			}
		default:
			t.Errorf("listener %s got nothing", sub.ID)
		}
	}
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	for range listenerBuffer + 10 {
		b.Send(Update{Type: UpdateStatusMessage})
	}

	if n := len(sub.C); n != listenerBuffer {
		t.Errorf("expected %d buffered updates, got %d", listenerBuffer, n)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel")
	}
	if b.Len() != 0 {
		t.Errorf("expected no listeners, got %d", b.Len())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	b.Close()
	b.Close()

	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel after Close")
	}
	late := b.Subscribe()
	if _, ok := <-late.C; ok {
		t.Error("subscription after Close must be closed")
	}
	b.Unsubscribe(late)
	b.Send(Update{Type: UpdateStatusMessage})
}
