package session

// Phase is the handshake state of one connection. Phases only move forward;
// Failed and Closed are terminal and reachable from any other phase.
type Phase int32

const (
	PhaseAwaitingConnectAck Phase = iota
	PhaseAwaitingAuthAck
	PhaseAwaitingSubscribeAck
	PhaseStreaming
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingConnectAck:
		return "awaiting_connect_ack"
	case PhaseAwaitingAuthAck:
		return "awaiting_auth_ack"
	case PhaseAwaitingSubscribeAck:
		return "awaiting_subscribe_ack"
	case PhaseStreaming:
		return "streaming"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseFailed || p == PhaseClosed
}

// canTransition reports whether from -> to is legal: one step forward along
// the handshake, or into a terminal phase from a non-terminal one.
func canTransition(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	return to == from+1
}
