// Package wsclient reaches a relay server over HTTP for lobby management and
// a websocket for lobby traffic.
package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DoyleJ11/lobby-sync/internal/room"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	hostTokenHeader = "X-Host-Token"
	reasonLost      = "relay connection lost"
)

type Client struct {
	base         string
	http         *http.Client
	log          *zap.Logger
	writeTimeout time.Duration
}

var _ transport.Service = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(log *zap.Logger) Option { return func(c *Client) { c.log = log } }

func WithWriteTimeout(d time.Duration) Option { return func(c *Client) { c.writeTimeout = d } }

// New returns a client for the relay at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:         strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 10 * time.Second},
		log:          zap.NewNop(),
		writeTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateLobby(ctx context.Context, capacity int) (transport.Handle, error) {
	var out struct {
		Code      string `json:"code"`
		HostToken string `json:"hostToken"`
	}
	body := map[string]int{"capacity": capacity}
	if err := c.do(ctx, http.MethodPost, "/lobbies", "", body, &out); err != nil {
		return transport.Handle{}, fmt.Errorf("create lobby: %w", err)
	}
	return transport.Handle{ID: out.Code, HostToken: out.HostToken}, nil
}

func (c *Client) JoinLobby(ctx context.Context, id string) (transport.Handle, error) {
	var info room.Info
	if err := c.do(ctx, http.MethodGet, "/lobbies/"+url.PathEscape(id), "", nil, &info); err != nil {
		return transport.Handle{}, fmt.Errorf("join lobby %s: %w", id, err)
	}
	switch {
	case !info.Joinable:
		return transport.Handle{}, fmt.Errorf("join lobby %s: %w", id, transport.ErrNotJoinable)
	case info.Members >= info.Capacity:
		return transport.Handle{}, fmt.Errorf("join lobby %s: %w", id, transport.ErrLobbyFull)
	}
	return transport.Handle{ID: id}, nil
}

// LeaveLobby closes the lobby on the relay when the host leaves. It returns
// at once; the request runs in the background.
func (c *Client) LeaveLobby(h transport.Handle) {
	if !h.IsHost() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
		defer cancel()
		if err := c.do(ctx, http.MethodDelete, "/lobbies/"+url.PathEscape(h.ID), h.HostToken, nil, nil); err != nil {
			c.log.Debug("leave lobby", zap.String("lobby", h.ID), zap.Error(err))
		}
	}()
}

func (c *Client) SetJoinable(ctx context.Context, h transport.Handle, joinable bool) error {
	return c.patch(ctx, h, room.Patch{Joinable: &joinable})
}

func (c *Client) SetVisibility(ctx context.Context, h transport.Handle, v transport.Visibility) error {
	return c.patch(ctx, h, room.Patch{Visibility: &v})
}

func (c *Client) SetMetadata(ctx context.Context, h transport.Handle, key, value string) error {
	return c.patch(ctx, h, room.Patch{Metadata: map[string]string{key: value}})
}

func (c *Client) patch(ctx context.Context, h transport.Handle, p room.Patch) error {
	return c.do(ctx, http.MethodPatch, "/lobbies/"+url.PathEscape(h.ID), h.HostToken, p, nil)
}

// Lobbies lists the public lobbies that accept joins.
func (c *Client) Lobbies(ctx context.Context) ([]room.Info, error) {
	var out []room.Info
	if err := c.do(ctx, http.MethodGet, "/lobbies", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Connect(ctx context.Context, h transport.Handle) (transport.Conn, error) {
	q := url.Values{"code": {h.ID}}
	if h.HostToken != "" {
		q.Set("token", h.HostToken)
	}

	ws, resp, err := websocket.Dial(ctx, c.base+"/ws?"+q.Encode(), &websocket.DialOptions{HTTPClient: c.http})
	if err != nil {
		if resp != nil {
			if serr := statusError(resp); serr != nil {
				return nil, fmt.Errorf("connect %s: %w", h.ID, serr)
			}
		}
		return nil, fmt.Errorf("connect %s: %w", h.ID, err)
	}

	var welcome transport.Frame
	if err := wsjson.Read(ctx, ws, &welcome); err != nil {
		ws.CloseNow()
		return nil, fmt.Errorf("connect %s: %w", h.ID, err)
	}
	if welcome.Kind != transport.FrameWelcome {
		ws.CloseNow()
		return nil, fmt.Errorf("connect %s: unexpected %q frame", h.ID, welcome.Kind)
	}

	conn := transport.NewFrameConn(welcome,
		func(f transport.Frame) error {
			wctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
			defer cancel()
			return wsjson.Write(wctx, ws, f)
		},
		func() error {
			// The close handshake waits on the relay; callers must not.
			go ws.Close(websocket.StatusNormalClosure, "bye")
			return nil
		},
	)

	go c.readLoop(ws, conn)
	return conn, nil
}

func (c *Client) readLoop(ws *websocket.Conn, conn *transport.FrameConn) {
	for {
		var f transport.Frame
		if err := wsjson.Read(context.Background(), ws, &f); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.log.Debug("relay read ended", zap.Error(err))
			}
			break
		}
		if !conn.Deliver(f) {
			break
		}
	}
	conn.Finish(reasonLost)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(hostTokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if serr := statusError(resp); serr != nil {
			return serr
		}
		return fmt.Errorf("relay: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	var b []byte
	if resp.Body != nil {
		b, _ = io.ReadAll(io.LimitReader(resp.Body, 1024))
	}
	return transport.ErrorFromStatus(resp.StatusCode, strings.TrimSpace(string(b)))
}
