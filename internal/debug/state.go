package debug

// State is the externally visible session state.
type State int

const (
	// StateIdle means no target process.
	StateIdle State = iota
	// StateRunning means the target is alive and not paused.
	StateRunning
	// StatePaused means the target is blocked waiting for Continue.
	StatePaused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
