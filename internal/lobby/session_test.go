package lobby

import (
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/lobby-sync/internal/chat"
	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_HostAndJoinerConverge(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Braum")

	converged(t, host, b)

	hv := host.s.View()
	assert.True(t, hv.IsHost)
	assert.Equal(t, transport.HostID, hv.LocalID)

	rec, ok := b.s.Roster().Get(b.id())
	require.True(t, ok)
	assert.False(t, rec.IsReady)
	assert.Equal(t, roster.NoCharacter, rec.SelectedCharacter)
	assert.Equal(t, b.ident.PersistentID, rec.PersistentID)

	require.Eventually(t, func() bool {
		return hasLine(b.chat, chat.KindPersonalSystem, "You have joined the lobby.") &&
			hasLine(host.chat, chat.KindGlobalSystem, "Braum has joined.")
	}, within, tick)
	assert.False(t, hasLine(b.chat, chat.KindGlobalSystem, "Braum has joined."))
	assert.Equal(t, 1, b.phases.count("lobby"))
}

func TestSession_BanKicksTargetAndBlocksRejoin(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Blitz")
	c := join(t, svc, host, id, "Corki")
	converged(t, host, b, c)
	bID := b.id()

	host.s.RequestKick(bID, true)

	waitState(t, b, Disconnected)
	assert.Equal(t, "You have been banned by the host.", b.s.CurrentReason())
	assert.Empty(t, b.s.CurrentReason(), "reason is consumed on read")
	assert.Zero(t, b.s.Roster().Len())

	require.Eventually(t, func() bool {
		_, inC := c.s.Roster().Get(bID)
		return !inC && hasLine(c.chat, chat.KindAdminSystem, "Blitz has been banned by the host.")
	}, within, tick)
	_, inHost := host.s.Roster().Get(bID)
	assert.False(t, inHost)
	assert.Equal(t, []string{b.ident.PersistentID}, host.s.View().Banned)

	// Same identity, fresh connection: the host turns it away.
	b.s.JoinByID(id)
	require.Eventually(t, func() bool {
		return b.s.CurrentReason() == "You have been banned by the host."
	}, within, tick)
	waitState(t, b, Disconnected)
	assert.Equal(t, 2, host.s.Roster().Len())
	converged(t, host, c)
}

func TestSession_KickWithoutBan(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bard")

	host.s.RequestKick(b.id(), false)

	waitState(t, b, Disconnected)
	assert.Equal(t, "You have been kicked by the host.", b.s.CurrentReason())
	require.Eventually(t, func() bool {
		return hasLine(host.chat, chat.KindAdminSystem, "Bard has been kicked by the host.")
	}, within, tick)
	assert.Empty(t, host.s.View().Banned)

	// A plain kick does not stop a rejoin.
	b.s.JoinByID(id)
	waitState(t, b, InLobby)
	converged(t, host, b)
}

func TestSession_ConcurrentReadyAppliedOnce(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Brand")
	c := join(t, svc, host, id, "Cassiopeia")
	bID, cID := b.id(), c.id()

	b.s.RequestCharacter(1)
	c.s.RequestCharacter(2)
	require.Eventually(t, func() bool {
		for _, p := range []*participant{host, b, c} {
			rb, _ := p.s.Roster().Get(bID)
			rc, _ := p.s.Roster().Get(cID)
			if rb.SelectedCharacter != 1 || rc.SelectedCharacter != 2 {
				return false
			}
		}
		return true
	}, within, tick)

	var mu sync.Mutex
	readyUpdates := map[*participant]map[roster.SessionID]int{}
	for _, p := range []*participant{host, b, c} {
		counts := map[roster.SessionID]int{}
		readyUpdates[p] = counts
		p.s.Roster().Subscribe(func(ev roster.Event) {
			if ev.Kind == roster.EventUpdated && ev.Record.IsReady {
				mu.Lock()
				counts[ev.Record.SessionID]++
				mu.Unlock()
			}
		})
	}

	var wg sync.WaitGroup
	for _, p := range []*participant{b, c} {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.s.RequestReady(true)
		}()
	}
	wg.Wait()

	converged(t, host, b, c)
	require.Eventually(t, func() bool {
		rb, _ := c.s.Roster().Get(bID)
		rc, _ := b.s.Roster().Get(cID)
		return rb.IsReady && rc.IsReady
	}, within, tick)
	time.Sleep(50 * time.Millisecond)

	hostRec, _ := b.s.Roster().Get(transport.HostID)
	assert.False(t, hostRec.IsReady, "no cross-contamination onto the host's record")

	mu.Lock()
	defer mu.Unlock()
	for p, counts := range readyUpdates {
		assert.Equal(t, map[roster.SessionID]int{bID: 1, cID: 1}, counts, "mirror of %s", p.ident.DisplayName)
	}
}

func TestSession_StartGateIsSilent(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bel'Veth")
	c := join(t, svc, host, id, "Camille")

	selectCharacter(t, host, 1)
	selectCharacter(t, b, 2)
	host.s.RequestReady(true)
	b.s.RequestReady(true)
	require.Eventually(t, func() bool {
		rh, _ := host.s.Roster().Get(transport.HostID)
		rb, _ := host.s.Roster().Get(b.id())
		return rh.IsReady && rb.IsReady
	}, within, tick)

	// Camille has no character, so neither request starts the game.
	host.s.RequestStartGame()
	b.s.RequestStartGame()
	time.Sleep(100 * time.Millisecond)

	for _, p := range []*participant{host, b, c} {
		assert.Equal(t, InLobby, p.s.View().State)
		assert.Zero(t, p.phases.count("game"))
	}
	assert.False(t, host.s.View().Locked)
	assert.Empty(t, b.s.CurrentReason())
}

func TestSession_StartGameLocksLobby(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bard")

	selectCharacter(t, host, 4)
	selectCharacter(t, b, 5)
	host.s.RequestReady(true)
	b.s.RequestReady(true)
	require.Eventually(t, host.s.Roster().AllReady, within, tick)

	b.s.RequestStartGame()

	waitState(t, host, InGame)
	waitState(t, b, InGame)
	assert.True(t, host.s.View().Locked)
	require.Eventually(t, func() bool { return b.phases.count("game") == 1 }, within, tick)

	// Locked lobbies refuse newcomers.
	require.Eventually(t, func() bool {
		_, err := svc.JoinLobby(testContext(t), id)
		return err != nil
	}, within, tick)
	late := newParticipant(t, svc, "Late")
	late.s.JoinByID(id)
	require.Eventually(t, func() bool {
		return late.s.CurrentReason() == "Failed to join lobby."
	}, within, tick)
	assert.Equal(t, Disconnected, late.s.View().State)
}

func TestSession_SnapshotPlusAddsMatchHost(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bel")
	c := join(t, svc, host, id, "Cho")
	selectCharacter(t, c, 7)
	selectCharacter(t, b, 3)
	b.s.RequestReady(true)
	require.Eventually(t, func() bool {
		rb, _ := host.s.Roster().Get(b.id())
		return rb.IsReady
	}, within, tick)

	d := join(t, svc, host, id, "Darius")
	converged(t, host, b, c, d)

	rb, _ := d.s.Roster().Get(b.id())
	assert.True(t, rb.IsReady)
	assert.Equal(t, 3, rb.SelectedCharacter)
	assert.Equal(t, 4, d.s.Roster().Len())
}

func TestSession_NonHostKickIgnored(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Blitz")
	c := join(t, svc, host, id, "Caitlyn")

	b.s.RequestKick(c.id(), true)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, InLobby, c.s.View().State)
	_, ok := host.s.Roster().Get(c.id())
	assert.True(t, ok)
	assert.Empty(t, host.s.View().Banned)
	converged(t, host, b, c)
}

func TestSession_HostCannotKickItself(t *testing.T) {
	svc := newRelay(t)
	host, _ := hostLobby(t, svc)

	host.s.RequestKick(transport.HostID, false)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, InLobby, host.s.View().State)
	assert.Equal(t, 1, host.s.Roster().Len())
}

func TestSession_ReadyGuardAndCharacterSelection(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bard")

	b.s.RequestReady(true)
	require.Eventually(t, func() bool {
		return hasLine(b.chat, chat.KindPersonalSystem, "Please select a character before getting ready!")
	}, within, tick)
	time.Sleep(30 * time.Millisecond)
	rb, _ := host.s.Roster().Get(b.id())
	assert.False(t, rb.IsReady)

	b.s.RequestCharacter(3)
	require.Eventually(t, func() bool {
		rb, _ := b.s.Roster().Get(b.id())
		return rb.SelectedCharacter == 3
	}, within, tick)
	b.s.RequestCharacter(3)
	b.s.View() // drain

	n := 0
	for _, l := range b.chat.Lines() {
		if l.Text == "Character 3 has been selected." {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestSession_ChatRelayedWithSenderName(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bard")
	c := join(t, svc, host, id, "Corki")

	b.s.SendChat("gl hf")
	host.s.SendChat("ready up")

	for _, p := range []*participant{host, b, c} {
		require.Eventually(t, func() bool {
			return hasLine(p.chat, chat.KindPlayer, "Bard: gl hf") &&
				hasLine(p.chat, chat.KindPlayer, "Host: ready up")
		}, within, tick, "chat of %s", p.ident.DisplayName)
	}
}

func TestSession_LeaveIsReportedToOthers(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bard")
	c := join(t, svc, host, id, "Corki")
	bID := b.id()

	b.s.Disconnect("")
	waitState(t, b, Disconnected)
	assert.Empty(t, b.s.CurrentReason())

	require.Eventually(t, func() bool {
		_, inC := c.s.Roster().Get(bID)
		return !inC && hasLine(c.chat, chat.KindGlobalSystem, "Bard has left.")
	}, within, tick)
	converged(t, host, c)
}

func TestSession_HostLeavingEndsLobby(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bard")

	host.s.Disconnect("")

	waitState(t, host, Disconnected)
	waitState(t, b, Disconnected)
	assert.Empty(t, host.s.CurrentReason())
	assert.Equal(t, "Connection to the lobby was lost.", b.s.CurrentReason())
	assert.Zero(t, b.s.Roster().Len())
	require.Eventually(t, func() bool { return b.phases.count("setup") == 1 }, within, tick)
}

func TestSession_AddBannedIdentity(t *testing.T) {
	svc := newRelay(t)
	host, id := hostLobby(t, svc)
	b := join(t, svc, host, id, "Bard")

	b.s.AddBannedIdentity("someone")
	host.s.AddBannedIdentity("someone")
	host.s.AddBannedIdentity("someone")

	assert.Empty(t, b.s.View().Banned)
	assert.Equal(t, []string{"someone"}, host.s.View().Banned)
}
