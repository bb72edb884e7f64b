package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/DoyleJ11/lobby-sync/internal/hub"
	"github.com/DoyleJ11/lobby-sync/internal/room"
	"github.com/DoyleJ11/lobby-sync/internal/telemetry"
	"github.com/DoyleJ11/lobby-sync/internal/transport"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const HostTokenHeader = "X-Host-Token"

type createRequest struct {
	Capacity int `json:"capacity"`
}

type createResponse struct {
	Code      string `json:"code"`
	HostToken string `json:"hostToken"`
}

func CreateLobby(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "lobby.create")
		defer span.End()

		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Capacity <= 0 {
			req.Capacity = opts.DefaultCapacity
		}
		if req.Capacity > opts.MaxCapacity {
			http.Error(w, "capacity too large", http.StatusBadRequest)
			return
		}

		created, err := h.Create(ctx, req.Capacity)
		if err != nil {
			fail(span, err)
			log.Error("create lobby", zap.Error(err))
			http.Error(w, "failed to create lobby", http.StatusInternalServerError)
			return
		}
		span.SetAttributes(attribute.String("lobby.code", created.Code))

		writeJSON(w, http.StatusCreated, createResponse{Code: created.Code, HostToken: created.Token})
	}
}

// ListLobbies returns the public lobbies that accept joins.
func ListLobbies(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "lobby.list")
		defer span.End()

		rooms, err := h.List(ctx)
		if err != nil {
			fail(span, err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		out := make([]room.Info, 0, len(rooms))
		for _, lb := range rooms {
			info, err := lb.Info(ctx)
			if err != nil {
				continue // closed while listing
			}
			if info.Visibility == transport.VisibilityPublic && info.Joinable && info.Members < info.Capacity {
				out = append(out, info)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "lobby.get")
		defer span.End()

		lb, err := h.Lookup(ctx, chi.URLParam(r, "code"))
		if err == nil {
			var info room.Info
			if info, err = lb.Info(ctx); err == nil {
				writeJSON(w, http.StatusOK, info)
				return
			}
		}
		fail(span, err)
		http.Error(w, err.Error(), transport.StatusCode(err))
	}
}

func PatchLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "lobby.patch")
		defer span.End()

		var p room.Patch
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if p.Visibility != nil {
			if _, err := transport.ParseVisibility(string(*p.Visibility)); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		lb, err := h.Lookup(ctx, chi.URLParam(r, "code"))
		if err == nil {
			err = lb.Apply(ctx, r.Header.Get(HostTokenHeader), p)
		}
		if err != nil {
			fail(span, err)
			http.Error(w, err.Error(), transport.StatusCode(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "lobby.delete")
		defer span.End()

		lb, err := h.Lookup(ctx, chi.URLParam(r, "code"))
		if err == nil {
			err = lb.CloseByHost(ctx, r.Header.Get(HostTokenHeader))
		}
		if err != nil {
			fail(span, err)
			http.Error(w, err.Error(), transport.StatusCode(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
