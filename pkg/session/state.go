package session

// State is the observable connection lifecycle state. It is mutated only by
// the machine's own event loop and read by UI-facing collaborators.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StatePeerFound
	StateRequesting
	StateIncomingRequest
	StateConnecting
	StateConnected
	StateTransferring
	StateVoiceCall
	StateDisconnected
	StateRejected
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateDiscovering:     "discovering",
	StatePeerFound:       "peerFound",
	StateRequesting:      "requesting",
	StateIncomingRequest: "incomingRequest",
	StateConnecting:      "connecting",
	StateConnected:       "connected",
	StateTransferring:    "transferring",
	StateVoiceCall:       "voiceCall",
	StateDisconnected:    "disconnected",
	StateRejected:        "rejected",
	StateFailed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// active reports whether heartbeats are expected in this state
func (s State) active() bool {
	return s == StateConnected || s == StateTransferring || s == StateVoiceCall
}

// sessionBound reports whether a channel is attached in this state
func (s State) sessionBound() bool {
	switch s {
	case StateRequesting, StateIncomingRequest, StateConnecting,
		StateConnected, StateTransferring, StateVoiceCall:
		return true
	}
	return false
}

// Status is the snapshot exposed to collaborators: current state plus the
// structured failure reason and transfer progress where applicable.
type Status struct {
	State    State          `json:"state"`
	Progress float64        `json:"progress,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Peer     *PeerCandidate `json:"peer,omitempty"`
}

// PeerCandidate is a discovered peer as reported by the discovery collaborator
type PeerCandidate struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Address     string `json:"address"`
}

// TransferRecord is emitted to the history sink when a transfer reaches a
// terminal outcome
type TransferRecord struct {
	FileName  string `json:"fileName"`
	Size      int64  `json:"size"`
	Direction string `json:"direction"`
	Success   bool   `json:"success"`
}
