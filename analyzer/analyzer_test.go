package analyzer

import (
	"testing"

	"github.com/m-lab/tcp-reorder/packet"
)

type countingState struct {
	packets int
}

func TestRegistryDispatchOrderAndLifecycle(t *testing.T) {
	var order []string
	r := NewRegistry()

	idxA := r.Register(Descriptor{
		Name:    "a",
		Create:  func() State { return &countingState{} },
		Destroy: func(s State) { order = append(order, "destroy-a") },
		OnPacket: func(s State, p packet.Packet, d packet.Direction) {
			order = append(order, "a")
			s.(*countingState).packets++
		},
	})
	idxB := r.Register(Descriptor{
		Name:    "b",
		Create:  func() State { return &countingState{} },
		Destroy: func(s State) { order = append(order, "destroy-b") },
		OnPacket: func(s State, p packet.Packet, d packet.Direction) {
			order = append(order, "b")
		},
	})

	if idxA != 0 || idxB != 1 {
		t.Fatalf("Register() indices = %d, %d, want 0, 1", idxA, idxB)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	states := r.CreateAll()
	r.Dispatch(states, nil, packet.DirectionOutbound)
	r.Dispatch(states, nil, packet.DirectionInbound)

	want := []string{"a", "b", "a", "b"}
	if len(order) != len(want) {
		t.Fatalf("dispatch order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	if states[idxA].(*countingState).packets != 2 {
		t.Errorf("analyzer a saw %d packets, want 2", states[idxA].(*countingState).packets)
	}

	order = nil
	r.DestroyAll(states)
	wantDestroy := []string{"destroy-a", "destroy-b"}
	for i := range wantDestroy {
		if order[i] != wantDestroy[i] {
			t.Errorf("destroy order[%d] = %q, want %q", i, order[i], wantDestroy[i])
		}
	}
}
