// Package transport describes the matchmaking and relay service a lobby
// session runs on, independent of how it is reached.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/lobby-sync/internal/roster"
)

var (
	ErrNotFound    = errors.New("lobby not found")
	ErrNotJoinable = errors.New("lobby not joinable")
	ErrLobbyFull   = errors.New("lobby full")
	ErrForbidden   = errors.New("host token required")
	ErrHostAbsent  = errors.New("lobby host not connected")
	ErrClosed      = errors.New("connection closed")
)

// HostID is the session id the relay gives to the lobby creator.
const HostID roster.SessionID = 0

type Visibility string

const (
	VisibilityPrivate     Visibility = "private"
	VisibilityFriendsOnly Visibility = "friends"
	VisibilityPublic      Visibility = "public"
)

func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPrivate, VisibilityFriendsOnly, VisibilityPublic:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("invalid visibility %q", s)
}

// Handle refers to one lobby on the service. HostToken is only set for the
// participant that created the lobby.
type Handle struct {
	ID        string `json:"id"`
	HostToken string `json:"hostToken,omitempty"`
}

func (h Handle) IsHost() bool { return h.HostToken != "" }

// Service is the matchmaking side: lobby lifecycle and settings.
type Service interface {
	CreateLobby(ctx context.Context, capacity int) (Handle, error)
	JoinLobby(ctx context.Context, id string) (Handle, error)
	// LeaveLobby must not block the caller.
	LeaveLobby(h Handle)
	SetJoinable(ctx context.Context, h Handle, joinable bool) error
	SetVisibility(ctx context.Context, h Handle, v Visibility) error
	SetMetadata(ctx context.Context, h Handle, key, value string) error
	Connect(ctx context.Context, h Handle) (Conn, error)
}

// Target selects the recipients of a message. Only the host may address
// anyone other than itself; the relay routes every non-host message to the
// host regardless of Target.
type Target struct {
	Broadcast bool
	To        roster.SessionID
}

func ToAll() Target { return Target{Broadcast: true} }

func To(id roster.SessionID) Target { return Target{To: id} }

func (t Target) String() string {
	if t.Broadcast {
		return "all"
	}
	return fmt.Sprintf("session %d", t.To)
}

type EventKind string

const (
	EventMessage    EventKind = "message"
	EventPeerJoined EventKind = "peer_joined"
	EventPeerLeft   EventKind = "peer_left"
	EventClosed     EventKind = "closed"
)

type Event struct {
	Kind    EventKind
	From    roster.SessionID // sender of a message, stamped by the relay
	Peer    roster.SessionID // subject of peer_joined / peer_left
	Payload []byte
	Reason  string // why the connection closed
}

// Conn is the message side: per-sender ordered, reliable delivery within one
// lobby. Events closes after delivering a single EventClosed.
type Conn interface {
	LocalID() roster.SessionID
	HostID() roster.SessionID
	IsHost() bool
	Send(t Target, payload []byte) error
	DisconnectPeer(id roster.SessionID) error
	Events() <-chan Event
	Close() error
}
