package lobby

import (
	"fmt"

	"github.com/DoyleJ11/lobby-sync/internal/chat"
	"github.com/DoyleJ11/lobby-sync/internal/protocol"
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"go.uber.org/zap"
)

const selectCharacterFirstText = "Please select a character before getting ready!"

func (s *Session) inLobby() bool {
	return s.conn != nil && (s.state == InLobby || s.state == InGame)
}

// request routes a local intent to the host. The host handles its own
// intents directly; nobody, the host included, mutates the mirror here.
func (s *Session) request(m protocol.Message) bool {
	if !s.inLobby() {
		s.log.Debug("intent dropped, not in a lobby", zap.String("type", string(m.MessageType())))
		return false
	}
	if s.isHost() {
		s.onRequest(s.localID, m)
		return true
	}
	s.send(transport.To(s.conn.HostID()), m)
	return true
}

func (s *Session) intentReady(ready bool) {
	if ready && s.inLobby() {
		if rec, ok := s.roster.Get(s.localID); !ok || !rec.HasCharacter() {
			s.chat.Add(chat.KindPersonalSystem, selectCharacterFirstText)
			return
		}
	}
	s.request(protocol.ReadyDelta{IsReady: ready})
}

func (s *Session) intentCharacter(id int) {
	if rec, ok := s.roster.Get(s.localID); ok && rec.SelectedCharacter == id {
		return
	}
	if s.request(protocol.CharacterDelta{CharacterID: id}) {
		s.chat.Add(chat.KindPersonalSystem, fmt.Sprintf("Character %d has been selected.", id))
	}
}

func (s *Session) intentKick(target roster.SessionID, ban bool) {
	s.request(protocol.KickRequest{Target: target, Ban: ban})
}

func (s *Session) intentStart() {
	s.request(protocol.StartGameRequest{})
}

func (s *Session) intentChat(text string) {
	if text == "" {
		return
	}
	s.request(protocol.ChatRequest{Text: text})
}
