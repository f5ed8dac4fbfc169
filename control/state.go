package control

// State is the phase of the call a Handler is running.
type State int

const (
	Idle State = iota
	Connecting
	AwaitingResponse
	Resolved
	TimedOut
	ConnectionFailed
	ProtocolViolation
)

var stateNames = [...]string{
	Idle:              "idle",
	Connecting:        "connecting",
	AwaitingResponse:  "awaiting_response",
	Resolved:          "resolved",
	TimedOut:          "timed_out",
	ConnectionFailed:  "connection_failed",
	ProtocolViolation: "protocol_violation",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
