package types

// State is the orchestrator's position in the split-payment sequence.
// Only the orchestrator mutates it, and Success/Failed are terminal.
type State string

const (
	StateIdle              State = "idle"
	StateDetectingProvider State = "detecting_provider"
	StateConnecting        State = "connecting"
	StateSwitchingChain    State = "switching_chain"
	StateCheckingBalance   State = "checking_balance"
	StateCheckingAllowance State = "checking_allowance"
	StateApproving         State = "approving"
	StateSimulating        State = "simulating"
	StateExecuting         State = "executing"
	StateNotifyingBackend  State = "notifying_backend"
	StateSuccess           State = "success"
	StateFailed            State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Terminal reports whether the flow has finished, one way or the other.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// StateSink receives state transitions as they happen. Implementations
// must not block; the orchestrator calls them inline.
type StateSink func(paymentID string, s State)
