package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/curamed/medisync/internal/bus"
)

// Phase represents where the synchronizer is within a sync cycle.
type Phase string

const (
	Idle      Phase = "IDLE"
	Probing   Phase = "PROBING"
	Uploading Phase = "UPLOADING"
	Merging   Phase = "MERGING"
	Completed Phase = "COMPLETED"
	Failed    Phase = "FAILED"
)

// validTransitions defines allowed phase transitions. A cycle always runs
// Probing -> Uploading -> Merging; Completed and Failed are terminal for
// the cycle and return to Idle.
var validTransitions = map[Phase][]Phase{
	Idle:      {Probing},
	Probing:   {Uploading, Failed},
	Uploading: {Merging, Failed},
	Merging:   {Completed, Failed},
	Completed: {Idle},
	Failed:    {Idle},
}

// Machine tracks and enforces sync cycle phase transitions.
type Machine struct {
	mu      sync.RWMutex
	current Phase
	bus     *bus.Bus
}

// NewMachine creates a new phase machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current phase.
func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new phase. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindSyncPhaseChanged,
			Timestamp: time.Now(),
			Payload: PhaseChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// PhaseChange is the payload for phase change events.
type PhaseChange struct {
	From Phase
	To   Phase
}
