package ws

import (
	"context"
	"errors"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrRecipientOffline = errors.New("recipient is not connected")
	ErrHubStopped       = errors.New("hub stopped")
)

type delivery struct {
	to     domain.UserID
	msg    domain.Notification
	result chan error
}

// Hub implements port.Messenger for peers connected over websocket. Only the
// Run loop touches the client map.
type Hub struct {
	clients    map[domain.UserID]Client
	deliver    chan delivery
	register   chan Client
	unregister chan Client
	quit       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]Client),
		deliver:    make(chan delivery),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Send(ctx context.Context, msg domain.Notification, recipient domain.UserID) error {
	select {
	case <-h.quit:
		return ErrHubStopped
	default:
	}

	d := delivery{to: recipient, msg: msg, result: make(chan error, 1)}
	select {
	case h.deliver <- d:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.quit:
		return ErrHubStopped
	}

	select {
	case err := <-d.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for id, client := range h.clients {
				client.Close()
				delete(h.clients, id)
			}
			return

		case client := <-h.register:
			if old, ok := h.clients[client.ID()]; ok && old != client {
				old.Close()
			}
			h.clients[client.ID()] = client
			log.Info().Str("user_id", client.ID().String()).Msg("Peer registered")

		case client := <-h.unregister:
			if cur, ok := h.clients[client.ID()]; ok && cur == client {
				delete(h.clients, client.ID())
				client.Close()
				log.Info().Str("user_id", client.ID().String()).Msg("Peer unregistered")
			}

		case d := <-h.deliver:
			client, ok := h.clients[d.to]
			if !ok {
				d.result <- ErrRecipientOffline
				continue
			}
			if err := client.SendNotification(d.msg); err != nil {
				log.Error().Err(err).Str("user_id", d.to.String()).Msg("Error sending notification")
				client.Close()
				delete(h.clients, d.to)
				d.result <- err
				continue
			}
			d.result <- nil
		}
	}
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	close(h.quit)
}
