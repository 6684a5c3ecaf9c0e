package session

// State denotes the connection state of the session
type State int

const (
	// StateIdle is active before the session is started
	StateIdle State = iota

	// StateScanning is active while scanning for the target peripheral
	StateScanning

	// StateConnecting is active while the radio dials the peripheral
	StateConnecting

	// StateServiceDiscovery is active between link establishment and a successful subscription
	StateServiceDiscovery

	// StateConnected is active while notifications flow
	StateConnected

	// StateFailed is active after a connection attempt failed, until the lifecycle policy rescans
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "Idle",
	StateScanning:         "Scanning",
	StateConnecting:       "Connecting",
	StateServiceDiscovery: "ServiceDiscovery",
	StateConnected:        "Connected",
	StateFailed:           "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// transitions lists the legal edges. Teardown is the one path that may enter
// StateScanning from anywhere and is not listed here.
var transitions = map[State][]State{
	StateIdle:             {StateScanning},
	StateScanning:         {StateConnecting},
	StateConnecting:       {StateServiceDiscovery, StateFailed},
	StateServiceDiscovery: {StateConnected, StateFailed},
	StateConnected:        {StateScanning},
	StateFailed:           {StateScanning},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Status denotes the current state together with the error that caused it, if any
type Status struct {
	Error error
	State
}
