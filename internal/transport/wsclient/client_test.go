package wsclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/lobby-sync/internal/httpapi"
	"github.com/DoyleJ11/lobby-sync/internal/hub"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T) *Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(httpapi.SetupRoutes(hub.NewHub(ctx, nil), nil, httpapi.Options{}))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func recvEvent(t *testing.T, c transport.Conn) transport.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return transport.Event{}
	}
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	c := newRelay(t)
	ctx := context.Background()

	_, err := c.JoinLobby(ctx, "NOPE00")
	assert.ErrorIs(t, err, transport.ErrNotFound)

	h, err := c.CreateLobby(ctx, 4)
	require.NoError(t, err)

	_, err = c.JoinLobby(ctx, h.ID)
	assert.ErrorIs(t, err, transport.ErrNotJoinable)

	_, err = c.Connect(ctx, transport.Handle{ID: h.ID})
	assert.ErrorIs(t, err, transport.ErrHostAbsent)

	err = c.SetJoinable(ctx, transport.Handle{ID: h.ID, HostToken: "nope"}, true)
	assert.ErrorIs(t, err, transport.ErrForbidden)
}

func TestClient_RelayRoundTrip(t *testing.T) {
	c := newRelay(t)
	ctx := context.Background()

	h, err := c.CreateLobby(ctx, 4)
	require.NoError(t, err)
	host, err := c.Connect(ctx, h)
	require.NoError(t, err)
	defer host.Close()
	assert.True(t, host.IsHost())

	require.NoError(t, c.SetJoinable(ctx, h, true))
	require.NoError(t, c.SetVisibility(ctx, h, transport.VisibilityPublic))
	require.NoError(t, c.SetMetadata(ctx, h, "name", "Vi's Lobby"))

	list, err := c.Lobbies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Vi's Lobby", list[0].Metadata["name"])

	joined, err := c.JoinLobby(ctx, h.ID)
	require.NoError(t, err)
	peer, err := c.Connect(ctx, joined)
	require.NoError(t, err)
	defer peer.Close()

	ev := recvEvent(t, host)
	require.Equal(t, transport.EventPeerJoined, ev.Kind)
	require.Equal(t, peer.LocalID(), ev.Peer)

	require.NoError(t, peer.Send(transport.ToAll(), []byte(`{"type":"Announce"}`)))
	ev = recvEvent(t, host)
	assert.Equal(t, transport.EventMessage, ev.Kind)
	assert.Equal(t, peer.LocalID(), ev.From)
	assert.JSONEq(t, `{"type":"Announce"}`, string(ev.Payload))

	require.NoError(t, host.Send(transport.ToAll(), []byte(`{"n":1}`)))
	ev = recvEvent(t, peer)
	assert.Equal(t, transport.HostID, ev.From)
	assert.JSONEq(t, `{"n":1}`, string(ev.Payload))

	require.NoError(t, host.DisconnectPeer(peer.LocalID()))
	ev = recvEvent(t, peer)
	assert.Equal(t, transport.EventClosed, ev.Kind)
	assert.Equal(t, "Removed by the host.", ev.Reason)

	ev = recvEvent(t, host)
	assert.Equal(t, transport.EventPeerLeft, ev.Kind)
}

func TestClient_HostLeaveClosesPeers(t *testing.T) {
	c := newRelay(t)
	ctx := context.Background()

	h, err := c.CreateLobby(ctx, 2)
	require.NoError(t, err)
	host, err := c.Connect(ctx, h)
	require.NoError(t, err)
	require.NoError(t, c.SetJoinable(ctx, h, true))

	peer, err := c.Connect(ctx, transport.Handle{ID: h.ID})
	require.NoError(t, err)
	recvEvent(t, host)

	c.LeaveLobby(h)
	host.Close()

	ev := recvEvent(t, peer)
	assert.Equal(t, transport.EventClosed, ev.Kind)
	assert.Equal(t, "The host closed the lobby.", ev.Reason)
}
