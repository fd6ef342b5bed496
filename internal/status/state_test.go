package status

import (
	"testing"
	"time"

	"github.com/curamed/medisync/internal/bus"
)

func TestStartsIdle(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("Current() = %s, want %s", m.Current(), Idle)
	}
}

func TestFullCycleTransitions(t *testing.T) {
	m := NewMachine(nil)
	phases := []Phase{Probing, Uploading, Merging, Completed, Idle}
	for _, p := range phases {
		if err := m.Transition(p); err != nil {
			t.Fatalf("Transition(%s) error = %v", p, err)
		}
	}
	if m.Current() != Idle {
		t.Errorf("Current() = %s, want %s after full cycle", m.Current(), Idle)
	}
}

func TestFailedCycleReturnsToIdle(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Probing); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Failed); err != nil {
		t.Fatalf("Transition(Failed) from Probing error = %v", err)
	}
	if err := m.Transition(Idle); err != nil {
		t.Fatalf("Transition(Idle) from Failed error = %v", err)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Merging); err == nil {
		t.Error("Transition(Merging) from Idle should fail")
	}
	if err := m.Transition(Completed); err == nil {
		t.Error("Transition(Completed) from Idle should fail")
	}
	if m.Current() != Idle {
		t.Errorf("Current() = %s, failed transition should not change phase", m.Current())
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	if err := m.Transition(Probing); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(PhaseChange)
		if !ok {
			t.Fatalf("payload is %T, want PhaseChange", evt.Payload)
		}
		if change.From != Idle || change.To != Probing {
			t.Errorf("change = %+v, want Idle -> Probing", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for phase change event")
	}
}
