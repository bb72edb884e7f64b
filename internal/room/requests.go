package room

import (
	"context"

	"github.com/DoyleJ11/lobby-sync/internal/roster"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
)

// request posts a message carrying a reply channel and waits for the answer.
func request[T any](ctx context.Context, r *Room, build func(reply chan T) Msg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if !r.Post(build(reply)) {
		return zero, transport.ErrNotFound
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, transport.ErrNotFound
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (r *Room) JoinPeer(ctx context.Context, token string, outbox chan transport.Frame) (roster.SessionID, error) {
	res, err := request(ctx, r, func(reply chan JoinResult) Msg {
		return Join{Token: token, Outbox: outbox, Reply: reply}
	})
	if err != nil {
		return 0, err
	}
	return res.ID, res.Err
}

func (r *Room) Apply(ctx context.Context, token string, patch Patch) error {
	res, err := request(ctx, r, func(reply chan error) Msg {
		return Configure{Token: token, Patch: patch, Reply: reply}
	})
	if err != nil {
		return err
	}
	return res
}

func (r *Room) CloseByHost(ctx context.Context, token string) error {
	res, err := request(ctx, r, func(reply chan error) Msg {
		return CloseLobby{Token: token, Reply: reply}
	})
	if err != nil {
		return err
	}
	return res
}

func (r *Room) Info(ctx context.Context) (Info, error) {
	return request(ctx, r, func(reply chan Info) Msg {
		return GetInfo{Reply: reply}
	})
}
