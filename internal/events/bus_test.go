package events

import "testing"

func TestEmitFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(8)
	b := bus.Subscribe(8)

	if err := bus.Emit(CategoryStartup, "phase", map[string]any{"phase": "Ready"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.Events()
		if ev.Category != CategoryStartup || ev.Name != "phase" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Payload["phase"] != "Ready" {
			t.Errorf("unexpected payload: %+v", ev.Payload)
		}
	}
}

func TestEmitPreservesOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(16)

	for i := 0; i < 10; i++ {
		_ = bus.Emit(CategoryCommunication, "stream:output", map[string]any{"seq": i})
	}

	for i := 0; i < 10; i++ {
		ev := <-sub.Events()
		if ev.Payload["seq"] != i {
			t.Fatalf("out of order: expected %d, got %v", i, ev.Payload["seq"])
		}
	}
}

func TestEmitDropsOnFullQueue(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)

	if err := bus.Emit(CategorySystem, "error", nil); err != nil {
		t.Fatalf("first emit should fit: %v", err)
	}
	if err := bus.Emit(CategorySystem, "error", nil); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if sub.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", sub.Dropped())
	}
}

func TestCloseRemovesSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	sub.Close()

	if err := bus.Emit(CategoryPlot, "added", nil); err != nil {
		t.Fatalf("emit to empty bus should succeed: %v", err)
	}
	if _, open := <-sub.Events(); open {
		t.Error("expected closed channel after Close")
	}
}
