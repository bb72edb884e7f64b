package lobby

import (
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
)

type Msg interface{ isSessionMsg() }

// Requests from the public API.
type createLobby struct {
	Name       string
	Visibility transport.Visibility
}

type joinLobby struct{ Handle transport.Handle }

type joinByID struct{ ID string }

type disconnect struct{ Reason string }

type lockLobby struct{}

type addBan struct{ PersistentID string }

type requestReady struct{ Ready bool }

type requestCharacter struct{ CharacterID int }

type requestKick struct {
	Target roster.SessionID
	Ban    bool
}

type requestStart struct{}

type sendChat struct{ Text string }

type takeReason struct{ Reply chan string }

type getView struct{ Reply chan View }

// Completions of work started off the loop. Gen is the generation the work
// was started under; a mismatch means the session was torn down meanwhile.
type created struct {
	Gen        uint64
	Handle     transport.Handle
	Name       string
	Visibility transport.Visibility
	Err        error
}

type joined struct {
	Gen    uint64
	Handle transport.Handle
	Err    error
}

type connected struct {
	Gen  uint64
	Conn transport.Conn
	Err  error
}

type phaseLoaded struct {
	Gen  uint64
	Name string
	Err  error
}

type kickDue struct {
	Gen    uint64
	Target roster.SessionID
}

func (createLobby) isSessionMsg()      {}
func (joinLobby) isSessionMsg()        {}
func (joinByID) isSessionMsg()         {}
func (disconnect) isSessionMsg()       {}
func (lockLobby) isSessionMsg()        {}
func (addBan) isSessionMsg()           {}
func (requestReady) isSessionMsg()     {}
func (requestCharacter) isSessionMsg() {}
func (requestKick) isSessionMsg()      {}
func (requestStart) isSessionMsg()     {}
func (sendChat) isSessionMsg()         {}
func (takeReason) isSessionMsg()       {}
func (getView) isSessionMsg()          {}
func (created) isSessionMsg()          {}
func (joined) isSessionMsg()           {}
func (connected) isSessionMsg()        {}
func (phaseLoaded) isSessionMsg()      {}
func (kickDue) isSessionMsg()          {}
