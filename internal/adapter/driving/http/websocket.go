package http

import (
	"net/http"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writeWait bounds one notification write; the hub waits on it.
var writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict to the device shell origin once it is configurable
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient is a remote peer receiving end-of-call notifications.
type WSClient struct {
	id   domain.UserID
	conn *websocket.Conn
}

func (c *WSClient) ID() domain.UserID {
	return c.id
}

func (c *WSClient) SendNotification(msg domain.Notification) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(map[string]interface{}{
		"event":        "call_notification",
		"notification": msg,
	})
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ServePeer registers the connection as the notification sink for user_id.
func (h *Handler) ServePeer(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   domain.UserID(userID),
		conn: conn,
	}

	l := log.With().Str("user_id", userID).Logger()
	l.Info().Msg("Peer connected")

	h.Hub.Register(client)

	defer func() {
		l.Info().Msg("Peer disconnected")
		h.Hub.Unregister(client)
		conn.Close()
	}()

	// peers only listen; reading keeps control frames flowing
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}
	}
}
