package tcp

// State is the connection state. Only the passive-open half of the
// RFC 9293 diagram exists here: this stack never initiates a
// connection, so SynSent and the FinWait states have no counterpart.
type State uint8

const (
	StateListen State = iota
	StateSynReceived
	StateEstablished
	StateCloseWait
	StateLastAck
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListen:
		return "Listen"
	case StateSynReceived:
		return "SynReceived"
	case StateEstablished:
		return "Established"
	case StateCloseWait:
		return "CloseWait"
	case StateLastAck:
		return "LastAck"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// step is one move of the state machine: the segment to emit (zero
// flags means no segment) and the state entered once it is sent.
type step struct {
	send  Flags
	enter State
}

// transition maps (state, inbound flags) to the ordered steps the
// handler must perform. accepted reports that the connection becomes
// application-visible (first data segment arrived). handled is false
// for flag/state combinations outside the passive-open walk; those
// segments are logged and ignored, no state change.
//
// Receiving FIN answers with ACK and then FIN|ACK rather than a bare
// FIN; RFC 9293 permits either and piggybacking saves a segment.
func transition(s State, f Flags) (steps []step, accepted, handled bool) {
	switch {
	case s == StateListen && f.Has(FlagSYN):
		return []step{{FlagSYN | FlagACK, StateSynReceived}}, false, true
	case s == StateSynReceived && f.Has(FlagACK):
		return []step{{0, StateEstablished}}, false, true
	case s == StateEstablished && f.Has(FlagPSH):
		return []step{{FlagACK, StateEstablished}}, true, true
	case s == StateEstablished && f.Has(FlagFIN):
		return []step{
			{FlagACK, StateCloseWait},
			{FlagFIN | FlagACK, StateLastAck},
		}, false, true
	case s == StateLastAck && f.Has(FlagACK):
		return []step{{0, StateClosed}}, false, true
	default:
		return nil, false, false
	}
}
