// Package protocol defines the messages exchanged between lobby participants
// and the host. Every participant sends requests to the host only; the host is
// the single authority that mutates the roster and broadcasts deltas.
//
//	Announce          participant -> host            identity
//	RosterSnapshot    host -> new participant        full roster
//	AddDelta          host -> all                    sessionId, identity
//	RemoveDelta       host -> all                    sessionId
//	ReadyDelta        participant -> host -> all     sessionId, isReady
//	CharacterDelta    participant -> host -> all     sessionId, characterId
//	KickRequest       participant -> host            targetSessionId, ban
//	KickNotice        host -> all                    targetSessionId, displayName, banned
//	ChatRequest       participant -> host            text
//	ChatRelay         host -> all                    sessionId, text
//	StartGameRequest  participant -> host
//	PhaseChange       host -> all                    phase
//
// On requests the SessionID field of ReadyDelta and CharacterDelta is ignored;
// the host uses the relay-stamped sender instead.
package protocol

import "github.com/DoyleJ11/lobby-sync/internal/roster"

type Type string

const (
	TypeAnnounce         Type = "Announce"
	TypeRosterSnapshot   Type = "RosterSnapshot"
	TypeAddDelta         Type = "AddDelta"
	TypeRemoveDelta      Type = "RemoveDelta"
	TypeReadyDelta       Type = "ReadyDelta"
	TypeCharacterDelta   Type = "CharacterDelta"
	TypeKickRequest      Type = "KickRequest"
	TypeKickNotice       Type = "KickNotice"
	TypeChatRequest      Type = "ChatRequest"
	TypeChatRelay        Type = "ChatRelay"
	TypeStartGameRequest Type = "StartGameRequest"
	TypePhaseChange      Type = "PhaseChange"
)

type Message interface{ MessageType() Type }

type Announce struct {
	Identity roster.Identity `json:"identity"`
}

type RosterSnapshot struct {
	Records []roster.Record `json:"records"`
}

type AddDelta struct {
	SessionID roster.SessionID `json:"sessionId"`
	Identity  roster.Identity  `json:"identity"`
}

type RemoveDelta struct {
	SessionID roster.SessionID `json:"sessionId"`
}

type ReadyDelta struct {
	SessionID roster.SessionID `json:"sessionId"`
	IsReady   bool             `json:"isReady"`
}

type CharacterDelta struct {
	SessionID   roster.SessionID `json:"sessionId"`
	CharacterID int              `json:"characterId"`
}

type KickRequest struct {
	Target roster.SessionID `json:"targetSessionId"`
	Ban    bool             `json:"ban"`
}

type KickNotice struct {
	Target      roster.SessionID `json:"targetSessionId"`
	DisplayName string           `json:"displayName"`
	Banned      bool             `json:"banned"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type ChatRelay struct {
	SessionID roster.SessionID `json:"sessionId"`
	Text      string           `json:"text"`
}

type StartGameRequest struct{}

type PhaseChange struct {
	Phase string `json:"phase"`
}

func (Announce) MessageType() Type         { return TypeAnnounce }
func (RosterSnapshot) MessageType() Type   { return TypeRosterSnapshot }
func (AddDelta) MessageType() Type         { return TypeAddDelta }
func (RemoveDelta) MessageType() Type      { return TypeRemoveDelta }
func (ReadyDelta) MessageType() Type       { return TypeReadyDelta }
func (CharacterDelta) MessageType() Type   { return TypeCharacterDelta }
func (KickRequest) MessageType() Type      { return TypeKickRequest }
func (KickNotice) MessageType() Type       { return TypeKickNotice }
func (ChatRequest) MessageType() Type      { return TypeChatRequest }
func (ChatRelay) MessageType() Type        { return TypeChatRelay }
func (StartGameRequest) MessageType() Type { return TypeStartGameRequest }
func (PhaseChange) MessageType() Type      { return TypePhaseChange }
