package models

// SessionState is the liveness of one streamer identity.
type SessionState string

const (
	SessionOffline SessionState = "offline"
	SessionOnline  SessionState = "online"
)

// Session events
const (
	SessionEventLogin      = "login"
	SessionEventDisconnect = "disconnect"
)

// ValidSessionTransitions maps state -> event -> next state.
// Login is accepted from both states (last login wins).
var ValidSessionTransitions = map[SessionState]map[string]SessionState{
	SessionOffline: {SessionEventLogin: SessionOnline},
	SessionOnline:  {SessionEventLogin: SessionOnline, SessionEventDisconnect: SessionOffline},
}

func NextSessionState(from SessionState, event string) (SessionState, bool) {
	next, ok := ValidSessionTransitions[from][event]
	return next, ok
}
