package lobby

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/lobby-sync/internal/chat"
	"github.com/DoyleJ11/lobby-sync/internal/hub"
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"github.com/DoyleJ11/lobby-sync/internal/transport/memtransport"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	within = 2 * time.Second
	tick   = 5 * time.Millisecond
)

var testConfig = Config{
	KickGrace:      20 * time.Millisecond,
	RequestTimeout: 2 * time.Second,
}

type phaseRecorder struct {
	mu    sync.Mutex
	loads []string
}

func (p *phaseRecorder) LoadPhase(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, name)
	return nil
}

func (p *phaseRecorder) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.loads {
		if l == name {
			n++
		}
	}
	return n
}

// countingService wraps a Service to observe teardown side effects.
type countingService struct {
	transport.Service

	mu     sync.Mutex
	leaves []transport.Handle
	closes atomic.Int32

	// When set, CreateLobby waits for it before reaching the relay.
	createGate chan struct{}

	// When set, a successful CreateLobby signals onHold and then waits for
	// releaseHold, ignoring ctx.
	onHold      chan struct{}
	releaseHold chan struct{}
}

func (c *countingService) CreateLobby(ctx context.Context, capacity int) (transport.Handle, error) {
	if c.createGate != nil {
		select {
		case <-c.createGate:
		case <-ctx.Done():
			return transport.Handle{}, ctx.Err()
		}
	}
	h, err := c.Service.CreateLobby(ctx, capacity)
	if err == nil && c.onHold != nil {
		c.onHold <- struct{}{}
		<-c.releaseHold
	}
	return h, err
}

func (c *countingService) LeaveLobby(h transport.Handle) {
	c.mu.Lock()
	c.leaves = append(c.leaves, h)
	c.mu.Unlock()
	c.Service.LeaveLobby(h)
}

func (c *countingService) Connect(ctx context.Context, h transport.Handle) (transport.Conn, error) {
	conn, err := c.Service.Connect(ctx, h)
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: conn, closes: &c.closes}, nil
}

func (c *countingService) leaveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.leaves)
}

func (c *countingService) left(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.leaves {
		if h.ID == id {
			return true
		}
	}
	return false
}

type countingConn struct {
	transport.Conn
	closes *atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

type participant struct {
	s      *Session
	ident  roster.Identity
	chat   *chat.Log
	phases *phaseRecorder
}

func (p *participant) id() roster.SessionID { return p.s.View().LocalID }

func newRelay(t *testing.T) *memtransport.Service {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return memtransport.New(hub.NewHub(ctx, nil), nil)
}

func newParticipant(t *testing.T, svc transport.Service, name string) *participant {
	t.Helper()
	p := &participant{
		ident:  roster.Identity{PersistentID: uuid.NewString(), DisplayName: name},
		chat:   chat.NewLog(chat.DefaultMaxLines),
		phases: &phaseRecorder{},
	}
	p.s = NewSession(context.Background(), testConfig, Deps{
		Service:  svc,
		Identity: p.ident,
		Phases:   p.phases,
		Chat:     p.chat,
	})
	t.Cleanup(p.s.Close)
	return p
}

func waitState(t *testing.T, p *participant, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.s.View().State == want },
		within, tick, "%s never reached %s", p.ident.DisplayName, want)
}

// hostLobby creates a public lobby and waits until it accepts joins.
func hostLobby(t *testing.T, svc transport.Service) (*participant, string) {
	t.Helper()
	host := newParticipant(t, svc, "Host")
	host.s.CreateLobby("Host's Lobby", transport.VisibilityPublic)
	waitState(t, host, InLobby)
	require.Eventually(t, func() bool { return host.s.Roster().Len() == 1 }, within, tick)
	return host, host.s.View().LobbyID
}

// join enters lobby id and waits until the host has admitted the newcomer.
func join(t *testing.T, svc transport.Service, host *participant, id, name string) *participant {
	t.Helper()
	p := newParticipant(t, svc, name)
	p.s.JoinByID(id)
	waitState(t, p, InLobby)
	local := p.id()
	require.Eventually(t, func() bool {
		_, inHost := host.s.Roster().Get(local)
		_, inOwn := p.s.Roster().Get(local)
		return inHost && inOwn
	}, within, tick, "%s was never admitted", name)
	return p
}

// converged waits until every mirror equals the host's roster.
func converged(t *testing.T, host *participant, others ...*participant) {
	t.Helper()
	require.Eventually(t, func() bool {
		want := host.s.Roster().Snapshot()
		for _, p := range others {
			got := p.s.Roster().Snapshot()
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
		}
		return true
	}, within, tick)
}

// selectCharacter picks character n and waits for the host's echo to reach
// p's own mirror, which is what the ready guard reads.
func selectCharacter(t *testing.T, p *participant, n int) {
	t.Helper()
	p.s.RequestCharacter(n)
	local := p.id()
	require.Eventually(t, func() bool {
		rec, ok := p.s.Roster().Get(local)
		return ok && rec.SelectedCharacter == n
	}, within, tick, "%s never saw character %d", p.ident.DisplayName, n)
}

func hasLine(l *chat.Log, kind chat.Kind, text string) bool {
	_, ok := l.Find(kind, text)
	return ok
}

// testContext returns a context that is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
