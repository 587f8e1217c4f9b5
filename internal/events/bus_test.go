package events

import "testing"

func TestBus_EmitOrderAndFilter(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(func(e Event) { got = append(got, "all:"+string(e.Type)) })
	b.SubscribeTypes(func(e Event) { got = append(got, "accepted:"+e.To) }, TypeOrderAccepted)

	b.Emit(Event{Type: TypeOrderTransition, To: "picked_up"})
	b.Emit(Event{Type: TypeOrderAccepted, To: "assigned"})

	want := []string{"all:order.transition", "all:order.accepted", "accepted:assigned"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	calls := 0
	id := b.Subscribe(func(Event) { calls++ })
	b.Emit(Event{Type: TypeOrderTransition})
	b.Unsubscribe(id)
	b.Emit(Event{Type: TypeOrderTransition})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBus_TimestampDefaultedAndNilSafe(t *testing.T) {
	b := NewBus()
	var seen Event
	b.Subscribe(func(e Event) { seen = e })
	b.Emit(Event{Type: TypeOrderTransition})
	if seen.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}

	var nilBus *Bus
	nilBus.Emit(Event{Type: TypeOrderTransition})
}
