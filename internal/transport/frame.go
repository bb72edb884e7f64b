package transport

import (
	"encoding/json"

	"github.com/DoyleJ11/lobby-sync/internal/roster"
)

type FrameKind string

const (
	FrameWelcome    FrameKind = "welcome"     // relay -> peer: To is the peer's id, From the host's
	FrameMessage    FrameKind = "message"     // peer <-> relay
	FramePeerJoined FrameKind = "peer_joined" // relay -> host
	FramePeerLeft   FrameKind = "peer_left"   // relay -> host
	FrameKick       FrameKind = "kick"        // host -> relay: drop Peer
	FrameClosed     FrameKind = "closed"      // relay -> peer, last frame before the socket closes
)

// Frame is the unit the relay moves between a lobby's connections.
type Frame struct {
	Kind      FrameKind        `json:"kind"`
	From      roster.SessionID `json:"from"`
	To        roster.SessionID `json:"to"`
	Broadcast bool             `json:"broadcast,omitempty"`
	Peer      roster.SessionID `json:"peer,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}
