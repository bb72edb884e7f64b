package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/DoyleJ11/lobby-sync/internal/hub"
	"github.com/DoyleJ11/lobby-sync/internal/room"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const outboxSize = 64

type Options struct {
	WriteTimeout time.Duration
	// IdleTimeout closes a connection that sent nothing for this long. Zero
	// disables it.
	IdleTimeout    time.Duration
	OriginPatterns []string
}

// Handler upgrades GET /ws?code=&token= into a relay connection. The peer is
// admitted to the room before the upgrade so refusals are plain HTTP errors.
func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		token := r.URL.Query().Get("token")

		lb, err := h.Lookup(r.Context(), code)
		if err != nil {
			http.Error(w, err.Error(), transport.StatusCode(err))
			return
		}

		out := make(chan transport.Frame, outboxSize)
		id, err := lb.JoinPeer(r.Context(), token, out)
		if err != nil {
			http.Error(w, err.Error(), transport.StatusCode(err))
			return
		}
		defer lb.Post(room.Leave{ID: id})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.String("lobby", code), zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		plog := log.With(zap.String("lobby", code), zap.Uint64("session", uint64(id)))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for f := range out {
				ctx, cancel := context.WithTimeout(writeCtx, opts.WriteTimeout)
				err := wsjson.Write(ctx, conn, f)
				cancel()
				if err != nil {
					plog.Debug("write failed", zap.Error(err))
					conn.Close(websocket.StatusInternalError, "write failed")
					return
				}
			}
			// The room dropped us; the closed frame, if any, went out above.
			conn.Close(websocket.StatusNormalClosure, "lobby closed")
		}()

		// Reader loop
		for {
			ctx, cancel := r.Context(), context.CancelFunc(func() {})
			if opts.IdleTimeout > 0 {
				ctx, cancel = context.WithTimeout(r.Context(), opts.IdleTimeout)
			}
			var f transport.Frame
			err := wsjson.Read(ctx, conn, &f)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					plog.Debug("read ended", zap.Error(err))
				}
				return
			}

			if !lb.Post(room.Route{From: id, Frame: f}) {
				return
			}
		}
	}
}
