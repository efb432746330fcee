package pgwire

import "sync"

// Phase is one state in a connection's lifecycle. Every message a role
// adapter sends or receives is legal in exactly a subset of phases; an
// attempt outside that subset is a StateError, never a silently ignored
// no-op.
type Phase int

const (
	PhasePreSSL Phase = iota
	PhaseAwaitingSSLAnswer
	PhasePreStartup
	PhaseStartupExchange
	PhaseOperational
	PhaseClosed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhasePreSSL:
		return "pre-ssl"
	case PhaseAwaitingSSLAnswer:
		return "awaiting-ssl-answer"
	case PhasePreStartup:
		return "pre-startup"
	case PhaseStartupExchange:
		return "startup-exchange"
	case PhaseOperational:
		return "operational"
	case PhaseClosed:
		return "closed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// legalTransitions lists, for each phase, the phases reachable by one
// step. PhaseClosed has no outgoing edges: it is terminal.
var legalTransitions = map[Phase][]Phase{
	PhasePreSSL:            {PhaseAwaitingSSLAnswer, PhasePreStartup, PhaseCancelled, PhaseClosed},
	PhaseAwaitingSSLAnswer: {PhasePreStartup, PhaseClosed},
	PhasePreStartup:        {PhaseStartupExchange, PhaseCancelled, PhaseClosed},
	PhaseStartupExchange:   {PhaseOperational, PhaseClosed},
	PhaseOperational:       {PhaseClosed},
	PhaseCancelled:         {PhaseClosed},
	PhaseClosed:            {},
}

// PhaseMachine tracks a single connection's current phase and rejects
// illegal transitions. It is safe for concurrent use, since the
// cooperative transport adapter may observe phase from both its read and
// write halves.
type PhaseMachine struct {
	mu    sync.Mutex
	phase Phase
}

// NewPhaseMachine starts a machine in PhasePreSSL, the state every new
// connection begins in before it has read anything from the wire.
func NewPhaseMachine() *PhaseMachine {
	return &PhaseMachine{phase: PhasePreSSL}
}

// Current returns the machine's phase.
func (m *PhaseMachine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transition moves the machine to next, or returns a StateError if next
// is not reachable from the current phase in one step.
func (m *PhaseMachine) Transition(next Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, candidate := range legalTransitions[m.phase] {
		if candidate == next {
			m.phase = next
			return nil
		}
	}
	return stateErrorf(m.phase.String(), "transition to "+next.String())
}

// Require returns a StateError naming message if the machine is not
// currently in phase. Role adapters call this before decoding a message
// that is only legal in one specific phase.
func (m *PhaseMachine) Require(phase Phase, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != phase {
		return stateErrorf(m.phase.String(), message)
	}
	return nil
}
