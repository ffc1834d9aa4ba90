package capture

// ArmState is the operating state of the monitored vehicle.
type ArmState int

const (
	Disarmed ArmState = iota
	Armed
)

func (s ArmState) String() string {
	if s == Armed {
		return "armed"
	}
	return "disarmed"
}

// ArmMachine tracks the vehicle state from heartbeat status fields.
// The zero value starts Disarmed.
type ArmMachine struct {
	state       ArmState
	transitions uint64
}

// Observe feeds the active flag of one heartbeat. It reports the new state
// and whether this heartbeat caused a transition. Repeated heartbeats with
// the same status never report a change.
func (m *ArmMachine) Observe(active bool) (ArmState, bool) {
	next := Disarmed
	if active {
		next = Armed
	}
	if next == m.state {
		return m.state, false
	}
	m.state = next
	m.transitions++
	return m.state, true
}

func (m *ArmMachine) State() ArmState {
	return m.state
}

func (m *ArmMachine) Armed() bool {
	return m.state == Armed
}

// Transitions counts the edges seen so far.
func (m *ArmMachine) Transitions() uint64 {
	return m.transitions
}
