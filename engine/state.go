package engine

// turnState tracks where the conversation loop is within one agent turn.
// Transitions: awaiting_turn -> model_call_pending -> response_received ->
// tool_dispatch -> awaiting_turn, ending in completed or failed.
type turnState int

const (
	stateAwaitingTurn turnState = iota
	stateModelCallPending
	stateResponseReceived
	stateToolDispatch
	stateCompleted
	stateFailed
)

func (s turnState) String() string {
	switch s {
	case stateAwaitingTurn:
		return "awaiting_turn"
	case stateModelCallPending:
		return "model_call_pending"
	case stateResponseReceived:
		return "response_received"
	case stateToolDispatch:
		return "tool_dispatch"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
