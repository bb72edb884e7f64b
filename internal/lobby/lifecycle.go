package lobby

import (
	"context"
	"time"

	"github.com/DoyleJ11/lobby-sync/internal/chat"
	"github.com/DoyleJ11/lobby-sync/internal/protocol"
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	MetadataName = "name"

	reasonCreateFailed = "Failed to create lobby."
	reasonJoinFailed   = "Failed to join lobby."
	reasonLost         = "Connection to the lobby was lost."

	joinedLobbyText = "You have joined the lobby."
)

func (s *Session) startCreate(msg createLobby) {
	if s.state != Disconnected {
		s.log.Warn("create lobby ignored", zap.Stringer("state", s.state))
		return
	}
	s.begin()

	capacity := s.cfg.Capacity
	s.async(func(ctx context.Context, gen uint64) Msg {
		h, err := s.svc.CreateLobby(ctx, capacity)
		return created{Gen: gen, Handle: h, Name: msg.Name, Visibility: msg.Visibility, Err: err}
	})
}

func (s *Session) startJoin(h transport.Handle) {
	if s.state != Disconnected {
		s.log.Warn("join lobby ignored", zap.Stringer("state", s.state))
		return
	}
	s.begin()
	s.handle = &h
	s.connect(h, "", "")
}

func (s *Session) startJoinByID(id string) {
	if s.state != Disconnected {
		s.log.Warn("join lobby ignored", zap.Stringer("state", s.state))
		return
	}
	s.begin()

	s.async(func(ctx context.Context, gen uint64) Msg {
		h, err := s.svc.JoinLobby(ctx, id)
		return joined{Gen: gen, Handle: h, Err: err}
	})
}

// begin opens a new attempt. Whatever an earlier teardown left behind,
// including the latch and an unread reason, belongs to the old lobby.
func (s *Session) begin() {
	s.gen++
	s.disconnecting = false
	s.reason = ""
	s.setState(Connecting)
}

func (s *Session) onCreated(msg created) {
	if msg.Gen != s.gen {
		s.log.Debug("stale create result", zap.String("lobby", msg.Handle.ID))
		s.release(msg)
		return
	}
	if msg.Err != nil {
		s.log.Error("create lobby failed", zap.Error(msg.Err))
		s.disconnect(reasonCreateFailed)
		return
	}

	h := msg.Handle
	s.handle = &h
	s.log.Info("lobby created", zap.String("lobby", h.ID))
	s.connect(h, msg.Name, msg.Visibility)
}

func (s *Session) onJoined(msg joined) {
	if msg.Gen != s.gen {
		s.log.Debug("stale join result", zap.String("lobby", msg.Handle.ID))
		s.release(msg)
		return
	}
	if msg.Err != nil {
		s.log.Error("join lobby failed", zap.Error(msg.Err))
		s.disconnect(reasonJoinFailed)
		return
	}

	h := msg.Handle
	s.handle = &h
	s.connect(h, "", "")
}

// connect opens the lobby connection. The host then names the lobby and
// opens it for joins, so by the time it is in the lobby others can enter.
func (s *Session) connect(h transport.Handle, name string, vis transport.Visibility) {
	s.async(func(ctx context.Context, gen uint64) Msg {
		conn, err := s.svc.Connect(ctx, h)
		if err != nil {
			return connected{Gen: gen, Err: err}
		}
		if h.IsHost() {
			err := multierr.Combine(
				s.svc.SetMetadata(ctx, h, MetadataName, name),
				s.svc.SetVisibility(ctx, h, vis),
				s.svc.SetJoinable(ctx, h, true),
			)
			if err != nil {
				s.log.Error("configure lobby", zap.String("lobby", h.ID), zap.Error(err))
			}
		}
		return connected{Gen: gen, Conn: conn}
	})
}

func (s *Session) onConnected(msg connected) {
	if msg.Gen != s.gen {
		s.log.Debug("stale connection")
		s.release(msg)
		return
	}
	if msg.Err != nil {
		s.log.Error("connect to lobby failed", zap.Error(msg.Err))
		if s.isHost() {
			s.disconnect(reasonCreateFailed)
		} else {
			s.disconnect(reasonJoinFailed)
		}
		return
	}

	s.conn = msg.Conn
	s.events = msg.Conn.Events()
	s.localID = msg.Conn.LocalID()
	s.setState(InLobby)
	s.log.Info("entered lobby",
		zap.String("lobby", s.handle.ID),
		zap.Uint64("session", uint64(s.localID)),
		zap.Bool("host", s.isHost()))

	me := s.ident.Identity()
	if s.isHost() {
		s.admit(s.localID, me)
	} else {
		s.send(transport.To(s.conn.HostID()), protocol.Announce{Identity: me})
	}
	s.loadPhase(s.cfg.LobbyPhase)
}

// release gives back what a completion acquired after the session moved on.
// It only touches the service and the connection, so it is safe off the loop.
func (s *Session) release(m Msg) {
	switch msg := m.(type) {
	case created:
		if msg.Err == nil {
			s.svc.LeaveLobby(msg.Handle)
		}
	case joined:
		if msg.Err == nil {
			s.svc.LeaveLobby(msg.Handle)
		}
	case connected:
		if msg.Conn != nil {
			msg.Conn.Close()
		}
	}
}

func (s *Session) disconnect(reason string) {
	if s.disconnecting {
		return
	}
	s.disconnecting = true

	switch {
	case reason == "":
		s.reason = ""
	case s.reason == "":
		s.reason = reason
	}

	s.teardown()
	s.log.Info("disconnected", zap.String("reason", s.reason))
}

func (s *Session) teardown() {
	s.gen++

	if s.handle != nil {
		s.svc.LeaveLobby(*s.handle)
		s.handle = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Warn("close connection", zap.Error(err))
		}
		s.conn = nil
		s.events = nil
	}

	s.roster.Clear()
	s.localID = 0
	s.bans = BanList{}
	s.locked = false
	s.setState(Disconnected)

	if s.ctx.Err() == nil {
		s.loadPhase(s.cfg.SetupPhase)
	}
}

func (s *Session) shutdown() {
	s.disconnect("")
}

func (s *Session) lockLobby() {
	if !s.isHost() {
		s.log.Warn("lock lobby: not the host")
		return
	}
	if s.locked {
		return
	}
	s.locked = true

	h := *s.handle
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer cancel()
		if err := s.svc.SetJoinable(ctx, h, false); err != nil {
			s.log.Error("lock lobby", zap.String("lobby", h.ID), zap.Error(err))
			return
		}
		s.log.Info("lobby locked", zap.String("lobby", h.ID))
	}()
}

func (s *Session) addBan(persistentID string) {
	if !s.isHost() {
		s.log.Warn("ban ignored: not the host", zap.String("persistent_id", persistentID))
		return
	}
	if s.bans.Add(persistentID) {
		s.log.Info("identity banned", zap.String("persistent_id", persistentID))
	}
}

func (s *Session) loadPhase(name string) {
	s.async(func(ctx context.Context, gen uint64) Msg {
		return phaseLoaded{Gen: gen, Name: name, Err: s.phases.LoadPhase(ctx, name)}
	})
}

func (s *Session) onPhaseLoaded(msg phaseLoaded) {
	if msg.Gen != s.gen {
		return
	}
	if msg.Err != nil {
		s.log.Error("load phase", zap.String("phase", msg.Name), zap.Error(msg.Err))
		return
	}
	if msg.Name == s.cfg.LobbyPhase && s.state == InLobby {
		s.chat.Add(chat.KindPersonalSystem, joinedLobbyText)
	}
}

// scheduleKick asks the relay to drop target once the kick notice has had
// time to arrive.
func (s *Session) scheduleKick(target roster.SessionID) {
	gen := s.gen
	time.AfterFunc(s.cfg.KickGrace, func() {
		s.post(kickDue{Gen: gen, Target: target})
	})
}

func (s *Session) onKickDue(msg kickDue) {
	if msg.Gen != s.gen || s.conn == nil {
		return
	}
	if err := s.conn.DisconnectPeer(msg.Target); err != nil {
		s.log.Warn("disconnect peer", zap.Uint64("session", uint64(msg.Target)), zap.Error(err))
	}
}
