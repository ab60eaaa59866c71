package http

import (
	"net/http"

	"github.com/Wyydra/yacall/internal/adapter/driven/device"
	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	Coordinator *service.Coordinator
	Bridge      *device.Bridge
	// Hub is nil when notifications go out over NATS or Redis.
	Hub     *ws.Hub
	History port.CallHistory
}

func NewHandler(coordinator *service.Coordinator, bridge *device.Bridge, hub *ws.Hub, history port.CallHistory) *Handler {
	return &Handler{
		Coordinator: coordinator,
		Bridge:      bridge,
		Hub:         hub,
		History:     history,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/ws/device", h.ServeDevice)
	if h.Hub != nil {
		r.Get("/ws/peer", h.ServePeer)
	}

	r.Route("/calls", func(r chi.Router) {
		r.Get("/", h.ListCalls)
		r.Get("/active", h.ActiveCall)
		r.Get("/history", h.CallHistory)
		r.Get("/{callID}", h.GetCall)
		r.Post("/{callID}/end", h.EndCall)
	})

	return r
}
