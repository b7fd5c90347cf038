package session

// State is the position of the Host in the GameLift process lifecycle.
type State int32

const (
	NotReady State = iota
	Ready
	Active
	Terminating
	Terminated
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Active:
		return "Active"
	case Terminating:
		return "Terminating"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
