package room

import (
	"context"
	"maps"

	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"go.uber.org/zap"
)

type Msg interface{ isRoomMsg() }

// Join registers a connection. The host joins with the lobby's token and must
// be first; everyone else joins without one.
type Join struct {
	Token  string
	Outbox chan transport.Frame // frames for this connection, closed when it is dropped
	Reply  chan JoinResult
}

type JoinResult struct {
	ID  roster.SessionID
	Err error
}

type Leave struct{ ID roster.SessionID }

// Route carries a frame read from connection From.
type Route struct {
	From  roster.SessionID
	Frame transport.Frame
}

type Configure struct {
	Token string
	Patch Patch
	Reply chan error
}

type Patch struct {
	Joinable   *bool                 `json:"joinable,omitempty"`
	Visibility *transport.Visibility `json:"visibility,omitempty"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
}

// CloseLobby ends the lobby on the host's request.
type CloseLobby struct {
	Token string
	Reply chan error
}

type GetInfo struct {
	Reply chan Info
}

type Shutdown struct{}

func (Join) isRoomMsg()       {}
func (Leave) isRoomMsg()      {}
func (Route) isRoomMsg()      {}
func (Configure) isRoomMsg()  {}
func (CloseLobby) isRoomMsg() {}
func (GetInfo) isRoomMsg()    {}
func (Shutdown) isRoomMsg()   {}

type Info struct {
	Code       string               `json:"code"`
	Visibility transport.Visibility `json:"visibility"`
	Joinable   bool                 `json:"joinable"`
	Members    int                  `json:"members"`
	Capacity   int                  `json:"capacity"`
	Metadata   map[string]string    `json:"metadata,omitempty"`
}

const (
	reasonHostLeft   = "The host closed the lobby."
	reasonKicked     = "Removed by the host."
	reasonSlowPeer   = "Connection too slow."
	reasonRelayClose = "The relay is shutting down."
)

// Room relays frames between the connections of one lobby. The host is the
// only connection that can reach everyone; frames from anyone else go to the
// host with the sender stamped by the room.
type Room struct {
	code     string
	token    string
	capacity int
	log      *zap.Logger

	inbox chan Msg
	ctx   context.Context
	stop  context.CancelFunc

	peers       map[roster.SessionID]chan transport.Frame
	hostPresent bool
	nextID      roster.SessionID
	joinable    bool
	visibility  transport.Visibility
	metadata    map[string]string
	onClosed    func(code string)
}

func New(parent context.Context, code, token string, capacity int, log *zap.Logger, onClosed func(code string)) *Room {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	r := &Room{
		code:       code,
		token:      token,
		capacity:   capacity,
		log:        log.With(zap.String("lobby", code)),
		inbox:      make(chan Msg, 64),
		ctx:        ctx,
		stop:       cancel,
		peers:      make(map[roster.SessionID]chan transport.Frame),
		nextID:     transport.HostID + 1,
		visibility: transport.VisibilityPrivate,
		metadata:   make(map[string]string),
		onClosed:   onClosed,
	}

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Expose the inbox so the hub, the websocket layer and tests can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Post delivers m unless the room has already shut down.
func (r *Room) Post(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.closeRoom(reasonRelayClose)
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				id, err := r.join(msg)
				msg.Reply <- JoinResult{ID: id, Err: err}

			case Leave:
				r.drop(msg.ID, "")

			case Route:
				r.route(msg.From, msg.Frame)

			case Configure:
				msg.Reply <- r.configure(msg)

			case CloseLobby:
				if msg.Token != r.token {
					msg.Reply <- transport.ErrForbidden
					break
				}
				msg.Reply <- nil
				r.closeRoom(reasonHostLeft)

			case GetInfo:
				msg.Reply <- r.info()

			case Shutdown:
				r.closeRoom(reasonRelayClose)
			}

			if r.ctx.Err() != nil {
				return
			}
		}
	}
}

func (r *Room) join(msg Join) (roster.SessionID, error) {
	var id roster.SessionID

	switch {
	case msg.Token != "":
		if msg.Token != r.token {
			return 0, transport.ErrForbidden
		}
		if r.hostPresent {
			return 0, transport.ErrNotJoinable
		}
		id = transport.HostID
		r.hostPresent = true

	case !r.hostPresent:
		return 0, transport.ErrHostAbsent
	case !r.joinable:
		return 0, transport.ErrNotJoinable
	case len(r.peers) >= r.capacity:
		return 0, transport.ErrLobbyFull

	default:
		id = r.nextID
		r.nextID++
	}

	r.peers[id] = msg.Outbox
	r.log.Info("peer joined", zap.Uint64("session", uint64(id)), zap.Int("members", len(r.peers)))

	r.deliver(id, transport.Frame{Kind: transport.FrameWelcome, From: transport.HostID, To: id})
	if id != transport.HostID {
		r.deliver(transport.HostID, transport.Frame{Kind: transport.FramePeerJoined, Peer: id})
	}
	return id, nil
}

func (r *Room) route(from roster.SessionID, f transport.Frame) {
	if _, ok := r.peers[from]; !ok {
		return
	}

	switch f.Kind {
	case transport.FrameMessage:
		f.From = from
		if from != transport.HostID {
			f.To = transport.HostID
			f.Broadcast = false
			r.deliver(transport.HostID, f)
			return
		}
		if !f.Broadcast {
			if f.To != transport.HostID {
				r.deliver(f.To, f)
			}
			return
		}
		for id := range r.peers {
			if id != transport.HostID {
				r.deliver(id, f)
			}
		}

	case transport.FrameKick:
		if from != transport.HostID {
			r.log.Warn("non-host kick ignored", zap.Uint64("session", uint64(from)))
			return
		}
		if f.Peer == transport.HostID {
			return
		}
		r.drop(f.Peer, reasonKicked)

	default:
		r.log.Debug("unexpected frame from peer", zap.String("kind", string(f.Kind)), zap.Uint64("session", uint64(from)))
	}
}

func (r *Room) deliver(id roster.SessionID, f transport.Frame) {
	ch, ok := r.peers[id]
	if !ok {
		return
	}
	select {
	case ch <- f:
		// ok
	default:
		// Peer is slow/full - drop them.
		r.log.Warn("dropping slow peer", zap.Uint64("session", uint64(id)))
		r.drop(id, reasonSlowPeer)
	}
}

// drop removes one connection. Losing the host ends the lobby; losing anyone
// else is reported to the host.
func (r *Room) drop(id roster.SessionID, reason string) {
	ch, ok := r.peers[id]
	if !ok {
		return
	}
	delete(r.peers, id)
	if reason != "" {
		select {
		case ch <- transport.Frame{Kind: transport.FrameClosed, Reason: reason}:
		default:
		}
	}
	close(ch)
	r.log.Info("peer left", zap.Uint64("session", uint64(id)), zap.String("reason", reason))

	if id == transport.HostID {
		r.closeRoom(reasonHostLeft)
		return
	}
	r.deliver(transport.HostID, transport.Frame{Kind: transport.FramePeerLeft, Peer: id})
}

func (r *Room) closeRoom(reason string) {
	for id, ch := range r.peers {
		select {
		case ch <- transport.Frame{Kind: transport.FrameClosed, Reason: reason}:
		default:
		}
		close(ch) // Tell peer no more frames
		delete(r.peers, id)
	}
	r.hostPresent = false
	if r.ctx.Err() == nil {
		r.log.Info("lobby closed", zap.String("reason", reason))
		r.stop()
		if r.onClosed != nil {
			go r.onClosed(r.code)
		}
	}
}

func (r *Room) configure(msg Configure) error {
	if msg.Token != r.token {
		return transport.ErrForbidden
	}
	if msg.Patch.Joinable != nil {
		r.joinable = *msg.Patch.Joinable
	}
	if msg.Patch.Visibility != nil {
		r.visibility = *msg.Patch.Visibility
	}
	maps.Copy(r.metadata, msg.Patch.Metadata)
	r.log.Debug("lobby configured", zap.Bool("joinable", r.joinable), zap.String("visibility", string(r.visibility)))
	return nil
}

func (r *Room) info() Info {
	return Info{
		Code:       r.code,
		Visibility: r.visibility,
		Joinable:   r.joinable,
		Members:    len(r.peers),
		Capacity:   r.capacity,
		Metadata:   maps.Clone(r.metadata),
	}
}
