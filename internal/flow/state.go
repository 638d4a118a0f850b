package flow

// SessionState is the lifecycle position of a Controller.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StatePreparing    SessionState = "preparing"
	StateConnecting   SessionState = "connecting"
	StateInterviewing SessionState = "interviewing"
	StateConcluding   SessionState = "concluding"
	StateTranscribing SessionState = "transcribing"
	StateSummarizing  SessionState = "summarizing"
	StateCompleted    SessionState = "completed"
	StateFailed       SessionState = "failed"
	StateCancelled    SessionState = "cancelled"
)

func (s SessionState) String() string { return string(s) }

// Terminal reports whether s ends a session.
func (s SessionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Startable reports whether Start may be called from s.
func (s SessionState) Startable() bool {
	return s == StateIdle || s.Terminal()
}
