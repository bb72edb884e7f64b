package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/lobby-sync/internal/room"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
)

var ErrShutdown = errors.New("hub shut down")

func ask[T any](ctx context.Context, h *Hub, build func(reply chan T) HubMsg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if !h.Post(build(reply)) {
		return zero, ErrShutdown
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrShutdown
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) Create(ctx context.Context, capacity int) (Created, error) {
	c, err := ask(ctx, h, func(reply chan Created) HubMsg {
		return CreateLobby{Capacity: capacity, Reply: reply}
	})
	if err != nil {
		return Created{}, err
	}
	return c, c.Err
}

// Lookup returns the lobby for code or transport.ErrNotFound.
func (h *Hub) Lookup(ctx context.Context, code string) (*room.Room, error) {
	lb, err := ask(ctx, h, func(reply chan *room.Room) HubMsg {
		return GetLobby{Code: code, Reply: reply}
	})
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, transport.ErrNotFound
	}
	return lb, nil
}

func (h *Hub) List(ctx context.Context) ([]*room.Room, error) {
	return ask(ctx, h, func(reply chan []*room.Room) HubMsg {
		return ListLobbies{Reply: reply}
	})
}
