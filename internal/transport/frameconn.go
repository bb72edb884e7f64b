package transport

import (
	"sync"

	"github.com/DoyleJ11/lobby-sync/internal/roster"
)

// FrameConn turns a stream of relay frames into a Conn. The owner feeds it
// with Deliver and ends it with Finish, both from a single goroutine.
type FrameConn struct {
	self roster.SessionID
	host roster.SessionID

	send    func(Frame) error
	closeFn func() error

	events chan Event
	done   chan struct{}

	closeOnce  sync.Once
	closeErr   error
	finishOnce sync.Once
	lastReason string
}

// NewFrameConn builds a Conn from the welcome frame the relay sent on entry.
func NewFrameConn(welcome Frame, send func(Frame) error, closeFn func() error) *FrameConn {
	return &FrameConn{
		self:    welcome.To,
		host:    welcome.From,
		send:    send,
		closeFn: closeFn,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
}

func (c *FrameConn) LocalID() roster.SessionID { return c.self }
func (c *FrameConn) HostID() roster.SessionID  { return c.host }
func (c *FrameConn) IsHost() bool              { return c.self == c.host }
func (c *FrameConn) Events() <-chan Event      { return c.events }

func (c *FrameConn) Send(t Target, payload []byte) error {
	if c.closed() {
		return ErrClosed
	}
	return c.send(Frame{Kind: FrameMessage, From: c.self, To: t.To, Broadcast: t.Broadcast, Payload: payload})
}

func (c *FrameConn) DisconnectPeer(id roster.SessionID) error {
	if c.closed() {
		return ErrClosed
	}
	return c.send(Frame{Kind: FrameKick, From: c.self, Peer: id})
}

func (c *FrameConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.closeFn()
	})
	return c.closeErr
}

// Deliver forwards one inbound frame. It returns false once the connection
// has been closed locally.
func (c *FrameConn) Deliver(f Frame) bool {
	if c.closed() {
		return false
	}
	var ev Event
	switch f.Kind {
	case FrameMessage:
		ev = Event{Kind: EventMessage, From: f.From, Payload: f.Payload}
	case FramePeerJoined:
		ev = Event{Kind: EventPeerJoined, Peer: f.Peer}
	case FramePeerLeft:
		ev = Event{Kind: EventPeerLeft, Peer: f.Peer}
	case FrameClosed:
		c.lastReason = f.Reason
		return true
	default:
		return true
	}

	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Finish emits EventClosed and closes the event channel. A reason carried by
// a closed frame wins over the one passed in.
func (c *FrameConn) Finish(reason string) {
	c.finishOnce.Do(func() {
		if c.lastReason != "" {
			reason = c.lastReason
		}
		select {
		case c.events <- Event{Kind: EventClosed, Reason: reason}:
		case <-c.done:
		}
		close(c.events)
	})
}

func (c *FrameConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
