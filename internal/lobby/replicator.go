package lobby

import (
	"fmt"

	"github.com/DoyleJ11/lobby-sync/internal/chat"
	"github.com/DoyleJ11/lobby-sync/internal/protocol"
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"go.uber.org/zap"
)

func kickVerb(banned bool) string {
	if banned {
		return "banned"
	}
	return "kicked"
}

func (s *Session) onEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventMessage:
		m, err := protocol.Decode(ev.Payload)
		if err != nil {
			s.log.Warn("undecodable message", zap.Uint64("from", uint64(ev.From)), zap.Error(err))
			return
		}
		if s.isHost() {
			s.onRequest(ev.From, m)
			return
		}
		if s.conn == nil || ev.From != s.conn.HostID() {
			s.log.Warn("message from non-host dropped",
				zap.Uint64("from", uint64(ev.From)), zap.String("type", string(m.MessageType())))
			return
		}
		s.apply(m)

	case transport.EventPeerJoined:
		s.log.Debug("peer connected", zap.Uint64("session", uint64(ev.Peer)))

	case transport.EventPeerLeft:
		if !s.isHost() {
			return
		}
		if _, ok := s.roster.Get(ev.Peer); ok {
			s.broadcast(protocol.RemoveDelta{SessionID: ev.Peer})
		}

	case transport.EventClosed:
		s.log.Info("lobby connection closed", zap.String("relay_reason", ev.Reason))
		s.events = nil
		s.disconnect(reasonLost)
	}
}

// onRequest is the host's handling of a message from participant from. The
// sender is the one stamped by the relay, never a field of the message.
func (s *Session) onRequest(from roster.SessionID, m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Announce:
		s.admit(from, msg.Identity)

	case protocol.ReadyDelta:
		if _, ok := s.roster.Get(from); !ok {
			return
		}
		s.broadcast(protocol.ReadyDelta{SessionID: from, IsReady: msg.IsReady})

	case protocol.CharacterDelta:
		if _, ok := s.roster.Get(from); !ok {
			return
		}
		s.broadcast(protocol.CharacterDelta{SessionID: from, CharacterID: msg.CharacterID})

	case protocol.KickRequest:
		if from != s.localID {
			s.log.Warn("kick request from non-host ignored",
				zap.Uint64("from", uint64(from)), zap.Uint64("target", uint64(msg.Target)))
			return
		}
		s.kick(msg.Target, msg.Ban)

	case protocol.ChatRequest:
		if _, ok := s.roster.Get(from); !ok {
			s.log.Warn("chat from unadmitted peer dropped", zap.Uint64("from", uint64(from)))
			return
		}
		s.broadcast(protocol.ChatRelay{SessionID: from, Text: msg.Text})

	case protocol.StartGameRequest:
		s.tryStart()

	default:
		s.log.Warn("unexpected message for host",
			zap.Uint64("from", uint64(from)), zap.String("type", string(m.MessageType())))
	}
}

// admit adds a participant that announced itself. The newcomer gets the
// roster as it stands, then everyone (newcomer included) gets its AddDelta,
// with nothing in between.
func (s *Session) admit(id roster.SessionID, ident roster.Identity) {
	if _, ok := s.roster.Get(id); ok {
		s.log.Debug("duplicate announce", zap.Uint64("session", uint64(id)))
		return
	}
	if s.state == InGame {
		s.log.Info("late joiner rejected, game already started", zap.Uint64("session", uint64(id)))
		s.scheduleKick(id)
		return
	}
	if s.bans.Contains(ident.PersistentID) {
		s.log.Info("banned identity rejected",
			zap.Uint64("session", uint64(id)), zap.String("persistent_id", ident.PersistentID))
		s.send(transport.To(id), protocol.KickNotice{Target: id, DisplayName: ident.DisplayName, Banned: true})
		s.scheduleKick(id)
		return
	}

	if id != s.localID {
		s.send(transport.To(id), protocol.RosterSnapshot{Records: s.roster.Snapshot()})
	}
	s.broadcast(protocol.AddDelta{SessionID: id, Identity: ident})
}

func (s *Session) kick(target roster.SessionID, ban bool) {
	rec, ok := s.roster.Get(target)
	if !ok {
		return
	}
	if target == s.localID {
		s.log.Warn("host cannot kick itself")
		return
	}
	if ban {
		s.addBan(rec.PersistentID)
	}
	s.log.Info("kicking participant",
		zap.Uint64("session", uint64(target)), zap.String("name", rec.DisplayName), zap.Bool("ban", ban))

	s.broadcast(protocol.KickNotice{Target: target, DisplayName: rec.DisplayName, Banned: ban})
	s.scheduleKick(target)
}

// tryStart moves everyone into the game once every participant is ready.
// A failed check is silent.
func (s *Session) tryStart() {
	if s.state != InLobby {
		return
	}
	if !s.roster.AllReady() {
		s.log.Debug("start game refused, not everyone is ready")
		return
	}
	s.lockLobby()
	s.broadcast(protocol.PhaseChange{Phase: s.cfg.GamePhase})
}

// apply brings the local roster in line with a host message. Participants
// call it for everything the host sends; the host calls it for its own
// broadcasts.
func (s *Session) apply(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.RosterSnapshot:
		for _, rec := range msg.Records {
			s.roster.Add(rec.SessionID, roster.Identity{PersistentID: rec.PersistentID, DisplayName: rec.DisplayName})
			s.roster.SetReady(rec.SessionID, rec.IsReady)
			s.roster.SetCharacter(rec.SessionID, rec.SelectedCharacter)
		}

	case protocol.AddDelta:
		if s.roster.Add(msg.SessionID, msg.Identity) && msg.SessionID != s.localID {
			s.chat.Add(chat.KindGlobalSystem, msg.Identity.DisplayName+" has joined.")
		}

	case protocol.RemoveDelta:
		if rec, ok := s.roster.Get(msg.SessionID); ok {
			s.roster.Remove(msg.SessionID)
			s.chat.Add(chat.KindGlobalSystem, rec.DisplayName+" has left.")
		}

	case protocol.ReadyDelta:
		s.roster.SetReady(msg.SessionID, msg.IsReady)

	case protocol.CharacterDelta:
		s.roster.SetCharacter(msg.SessionID, msg.CharacterID)

	case protocol.KickNotice:
		verb := kickVerb(msg.Banned)
		if msg.Target == s.localID {
			s.disconnect(fmt.Sprintf("You have been %s by the host.", verb))
			return
		}
		s.roster.Remove(msg.Target)
		s.chat.Add(chat.KindAdminSystem, fmt.Sprintf("%s has been %s by the host.", msg.DisplayName, verb))

	case protocol.ChatRelay:
		name := "Unknown"
		if rec, ok := s.roster.Get(msg.SessionID); ok {
			name = rec.DisplayName
		}
		s.chat.Add(chat.KindPlayer, name+": "+msg.Text)

	case protocol.PhaseChange:
		s.enterPhase(msg.Phase)

	default:
		s.log.Warn("unexpected message from host", zap.String("type", string(m.MessageType())))
	}
}

func (s *Session) enterPhase(name string) {
	if name == s.cfg.GamePhase {
		if s.state != InLobby {
			return
		}
		s.setState(InGame)
	}
	s.loadPhase(name)
}

// broadcast sends a host message to every participant and applies it locally.
func (s *Session) broadcast(m protocol.Message) {
	s.send(transport.ToAll(), m)
	s.apply(m)
}

func (s *Session) send(t transport.Target, m protocol.Message) {
	if s.conn == nil {
		return
	}
	payload, err := protocol.Encode(m)
	if err != nil {
		s.log.Error("encode message", zap.String("type", string(m.MessageType())), zap.Error(err))
		return
	}
	if err := s.conn.Send(t, payload); err != nil {
		s.log.Warn("send message", zap.String("type", string(m.MessageType())), zap.Stringer("to", t), zap.Error(err))
	}
}
