// Package memtransport runs the relay in-process. It gives a lobby session
// the same behaviour it would see over the network without a socket in
// between, which is what the lobby tests and single-process setups use.
package memtransport

import (
	"context"

	"github.com/DoyleJ11/lobby-sync/internal/hub"
	"github.com/DoyleJ11/lobby-sync/internal/room"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"go.uber.org/zap"
)

const outboxSize = 64

const reasonLost = "relay connection ended"

type Service struct {
	hub *hub.Hub
	log *zap.Logger
}

var _ transport.Service = (*Service)(nil)

// New returns a Service over h. Several sessions may share one Service.
func New(h *hub.Hub, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{hub: h, log: log}
}

func (s *Service) CreateLobby(ctx context.Context, capacity int) (transport.Handle, error) {
	c, err := s.hub.Create(ctx, capacity)
	if err != nil {
		return transport.Handle{}, err
	}
	return transport.Handle{ID: c.Code, HostToken: c.Token}, nil
}

func (s *Service) JoinLobby(ctx context.Context, id string) (transport.Handle, error) {
	lb, err := s.hub.Lookup(ctx, id)
	if err != nil {
		return transport.Handle{}, err
	}
	info, err := lb.Info(ctx)
	if err != nil {
		return transport.Handle{}, err
	}
	switch {
	case !info.Joinable:
		return transport.Handle{}, transport.ErrNotJoinable
	case info.Members >= info.Capacity:
		return transport.Handle{}, transport.ErrLobbyFull
	}
	return transport.Handle{ID: id}, nil
}

// LeaveLobby ends the lobby when the host leaves. Non-hosts leave by closing
// their connection.
func (s *Service) LeaveLobby(h transport.Handle) {
	if !h.IsHost() {
		return
	}
	go func() {
		lb, err := s.hub.Lookup(context.Background(), h.ID)
		if err != nil {
			return
		}
		if err := lb.CloseByHost(context.Background(), h.HostToken); err != nil {
			s.log.Debug("leave lobby", zap.String("lobby", h.ID), zap.Error(err))
		}
	}()
}

func (s *Service) SetJoinable(ctx context.Context, h transport.Handle, joinable bool) error {
	return s.apply(ctx, h, room.Patch{Joinable: &joinable})
}

func (s *Service) SetVisibility(ctx context.Context, h transport.Handle, v transport.Visibility) error {
	return s.apply(ctx, h, room.Patch{Visibility: &v})
}

func (s *Service) SetMetadata(ctx context.Context, h transport.Handle, key, value string) error {
	return s.apply(ctx, h, room.Patch{Metadata: map[string]string{key: value}})
}

func (s *Service) apply(ctx context.Context, h transport.Handle, p room.Patch) error {
	lb, err := s.hub.Lookup(ctx, h.ID)
	if err != nil {
		return err
	}
	return lb.Apply(ctx, h.HostToken, p)
}

func (s *Service) Connect(ctx context.Context, h transport.Handle) (transport.Conn, error) {
	lb, err := s.hub.Lookup(ctx, h.ID)
	if err != nil {
		return nil, err
	}

	outbox := make(chan transport.Frame, outboxSize)
	id, err := lb.JoinPeer(ctx, h.HostToken, outbox)
	if err != nil {
		return nil, err
	}

	// The room queues the welcome before it answers the join.
	welcome, ok := <-outbox
	if !ok || welcome.Kind != transport.FrameWelcome {
		return nil, transport.ErrClosed
	}

	conn := transport.NewFrameConn(welcome,
		func(f transport.Frame) error {
			if !lb.Post(room.Route{From: id, Frame: f}) {
				return transport.ErrClosed
			}
			return nil
		},
		func() error {
			lb.Post(room.Leave{ID: id})
			return nil
		},
	)

	go pump(outbox, conn)
	return conn, nil
}

func pump(outbox <-chan transport.Frame, conn *transport.FrameConn) {
	for f := range outbox {
		if !conn.Deliver(f) {
			// Closed locally; the room closes the outbox once it sees the leave.
			for range outbox {
			}
			break
		}
	}
	conn.Finish(reasonLost)
}
