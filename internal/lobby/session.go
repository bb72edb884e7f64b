// Package lobby runs one participant's side of a host-authoritative lobby.
//
// A Session owns the local roster mirror and the connection to the relay.
// Everything that touches them (user intents, frames from the relay, results
// of service calls, timers) is funnelled through a single goroutine, so the
// teardown latch and the roster need no further locking on this side.
//
// The host is the only participant that mutates rosters: it validates
// requests, applies the change locally and broadcasts a delta. Everyone else
// sends requests to the host and applies what the host broadcasts.
package lobby

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/lobby-sync/internal/chat"
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"go.uber.org/zap"
)

type State int

const (
	Disconnected State = iota
	Connecting
	InLobby
	InGame
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case InLobby:
		return "in_lobby"
	case InGame:
		return "in_game"
	}
	return "unknown"
}

type Config struct {
	Capacity int
	// KickGrace is how long the host waits after a kick notice before asking
	// the relay to drop the target. It is a soft deadline.
	KickGrace      time.Duration
	RequestTimeout time.Duration

	SetupPhase string
	LobbyPhase string
	GamePhase  string
}

func DefaultConfig() Config {
	return Config{
		Capacity:       4,
		KickGrace:      50 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
		SetupPhase:     "setup",
		LobbyPhase:     "lobby",
		GamePhase:      "game",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.KickGrace <= 0 {
		c.KickGrace = d.KickGrace
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.SetupPhase == "" {
		c.SetupPhase = d.SetupPhase
	}
	if c.LobbyPhase == "" {
		c.LobbyPhase = d.LobbyPhase
	}
	if c.GamePhase == "" {
		c.GamePhase = d.GamePhase
	}
	return c
}

type IdentityProvider interface {
	Identity() roster.Identity
}

// PhaseLoader switches the local presentation to the named phase. It may
// block; the session calls it off its own goroutine.
type PhaseLoader interface {
	LoadPhase(ctx context.Context, name string) error
}

type PhaseLoaderFunc func(ctx context.Context, name string) error

func (f PhaseLoaderFunc) LoadPhase(ctx context.Context, name string) error { return f(ctx, name) }

type ChatSink interface {
	Add(kind chat.Kind, text string)
}

type Deps struct {
	Service  transport.Service
	Identity IdentityProvider

	// Optional.
	Phases  PhaseLoader
	Chat    ChatSink
	Roster  *roster.Roster
	Log     *zap.Logger
	OnState func(State) // called from the session goroutine on every transition
}

// View is a point-in-time copy of the session state.
type View struct {
	State         State
	LobbyID       string
	IsHost        bool
	LocalID       roster.SessionID
	Connected     bool
	Locked        bool
	Disconnecting bool
	Banned        []string
}

type Session struct {
	cfg     Config
	svc     transport.Service
	ident   IdentityProvider
	phases  PhaseLoader
	chat    ChatSink
	roster  *roster.Roster
	log     *zap.Logger
	onState func(State)

	inbox   chan Msg
	pending sync.WaitGroup // in-flight async calls
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Owned by the loop goroutine.
	state         State
	gen           uint64
	disconnecting bool
	reason        string
	handle        *transport.Handle
	conn          transport.Conn
	events        <-chan transport.Event
	localID       roster.SessionID
	bans          BanList
	locked        bool
}

func NewSession(parent context.Context, cfg Config, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Roster == nil {
		deps.Roster = roster.New(deps.Log)
	}
	if deps.Phases == nil {
		deps.Phases = PhaseLoaderFunc(func(context.Context, string) error { return nil })
	}
	if deps.Chat == nil {
		deps.Chat = chat.NewLog(chat.DefaultMaxLines)
	}

	s := &Session{
		cfg:     cfg.withDefaults(),
		svc:     deps.Service,
		ident:   deps.Identity,
		phases:  deps.Phases,
		chat:    deps.Chat,
		roster:  deps.Roster,
		log:     deps.Log,
		onState: deps.OnState,
		inbox:   make(chan Msg, 64),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go s.loop()
	return s
}

// Close tears the session down and stops its goroutine.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// Roster is the local mirror. Subscribe to it for added, removed and updated
// notifications. Observers run on the session goroutine and must not call
// View or CurrentReason.
func (s *Session) Roster() *roster.Roster { return s.roster }

func (s *Session) CreateLobby(name string, visibility transport.Visibility) {
	s.post(createLobby{Name: name, Visibility: visibility})
}

func (s *Session) JoinLobby(h transport.Handle) { s.post(joinLobby{Handle: h}) }

func (s *Session) JoinByID(id string) { s.post(joinByID{ID: id}) }

// Disconnect leaves the current lobby. Only the first call after a create or
// join has any effect. An empty reason clears any recorded reason.
func (s *Session) Disconnect(reason string) { s.post(disconnect{Reason: reason}) }

// LockLobby stops new joins. Host only, at most once per lobby.
func (s *Session) LockLobby() { s.post(lockLobby{}) }

func (s *Session) AddBannedIdentity(persistentID string) {
	s.post(addBan{PersistentID: persistentID})
}

func (s *Session) RequestReady(ready bool) { s.post(requestReady{Ready: ready}) }
func (s *Session) RequestCharacter(id int) { s.post(requestCharacter{CharacterID: id}) }
func (s *Session) RequestStartGame()       { s.post(requestStart{}) }
func (s *Session) SendChat(text string)    { s.post(sendChat{Text: text}) }

func (s *Session) RequestKick(target roster.SessionID, ban bool) {
	s.post(requestKick{Target: target, Ban: ban})
}

// CurrentReason returns the last disconnect reason and clears it.
func (s *Session) CurrentReason() string {
	reply := make(chan string, 1)
	if !s.post(takeReason{Reply: reply}) {
		return ""
	}
	select {
	case r := <-reply:
		return r
	case <-s.done:
		return ""
	}
}

func (s *Session) View() View {
	reply := make(chan View, 1)
	if !s.post(getView{Reply: reply}) {
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-s.done:
		return View{}
	}
}

func (s *Session) post(m Msg) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			s.drain()
			return

		case m := <-s.inbox:
			s.dispatch(m)

		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			s.onEvent(ev)
		}
	}
}

func (s *Session) dispatch(m Msg) {
	switch msg := m.(type) {
	case createLobby:
		s.startCreate(msg)
	case joinLobby:
		s.startJoin(msg.Handle)
	case joinByID:
		s.startJoinByID(msg.ID)
	case disconnect:
		s.disconnect(msg.Reason)
	case lockLobby:
		s.lockLobby()
	case addBan:
		s.addBan(msg.PersistentID)

	case requestReady:
		s.intentReady(msg.Ready)
	case requestCharacter:
		s.intentCharacter(msg.CharacterID)
	case requestKick:
		s.intentKick(msg.Target, msg.Ban)
	case requestStart:
		s.intentStart()
	case sendChat:
		s.intentChat(msg.Text)

	case created:
		s.onCreated(msg)
	case joined:
		s.onJoined(msg)
	case connected:
		s.onConnected(msg)
	case phaseLoaded:
		s.onPhaseLoaded(msg)
	case kickDue:
		s.onKickDue(msg)

	case takeReason:
		msg.Reply <- s.reason
		s.reason = ""
	case getView:
		msg.Reply <- s.view()
	}
}

func (s *Session) view() View {
	v := View{
		State:         s.state,
		IsHost:        s.isHost(),
		LocalID:       s.localID,
		Connected:     s.conn != nil,
		Locked:        s.locked,
		Disconnecting: s.disconnecting,
		Banned:        s.bans.List(),
	}
	if s.handle != nil {
		v.LobbyID = s.handle.ID
	}
	return v
}

func (s *Session) isHost() bool { return s.handle != nil && s.handle.IsHost() }

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.log.Debug("session state", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
	if s.onState != nil {
		s.onState(st)
	}
}

// async runs fn off the loop and posts its result tagged with the current
// generation.
func (s *Session) async(fn func(ctx context.Context, gen uint64) Msg) {
	gen := s.gen
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
		defer cancel()
		if m := fn(ctx, gen); !s.post(m) {
			s.release(m)
		}
	}()
}

// drain releases whatever the in-flight calls deliver after shutdown, so a
// lobby or connection acquired during Close is given back.
func (s *Session) drain() {
	idle := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(idle)
	}()
	for {
		select {
		case m := <-s.inbox:
			s.release(m)
		case <-idle:
			for {
				select {
				case m := <-s.inbox:
					s.release(m)
				default:
					return
				}
			}
		}
	}
}
