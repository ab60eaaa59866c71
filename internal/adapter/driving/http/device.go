package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Wyydra/yacall/internal/adapter/driven/device"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const deviceEventQueue = 64

var (
	errUnknownEvent = errors.New("unknown event type")
	errQueueFull    = errors.New("device event queue full")
)

// ServeDevice attaches the device shell. Replies are resolved on the read
// loop; events go through one worker so they reach the coordinator in order.
// Provider resets skip the queue so a call stuck ending cannot hold them back.
func (h *Handler) ServeDevice(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	l := log.With().Str("remote", r.RemoteAddr).Logger()
	l.Info().Msg("Device attached")
	h.Bridge.Attach(conn)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan device.Envelope, deviceEventQueue)
	done := make(chan struct{})
	var resets sync.WaitGroup
	go func() {
		defer close(done)
		for env := range events {
			h.DispatchDeviceEvent(ctx, env)
		}
	}()

	defer func() {
		l.Info().Msg("Device detached")
		h.Bridge.Detach(conn)
		cancel()
		close(events)
		<-done
		resets.Wait()
		conn.Close()
	}()

	for {
		var env device.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		if env.Type == device.TypeReply {
			h.Bridge.Resolve(env)
			continue
		}
		if env.Type == device.EvtProviderReset {
			// the dismiss it may issue is answered through this loop
			resets.Add(1)
			go func() {
				defer resets.Done()
				h.DispatchDeviceEvent(ctx, env)
			}()
			continue
		}

		select {
		case events <- env:
		default:
			l.Warn().Str("type", env.Type).Msg("Device event queue full, dropping event")
			if env.ID != "" {
				h.Bridge.Reply(env.ID, env.CallID, errQueueFull)
			}
		}
	}
}

// DispatchDeviceEvent applies one device event and answers it when the
// device asked for a reply.
func (h *Handler) DispatchDeviceEvent(ctx context.Context, env device.Envelope) {
	callID, err := h.applyDeviceEvent(ctx, env)

	l := log.With().Str("type", env.Type).Str("call_id", callID).Logger()
	if err != nil {
		l.Warn().Err(err).Msg("Device event failed")
	} else {
		l.Debug().Msg("Device event applied")
	}

	if env.ID == "" {
		return
	}
	if rerr := h.Bridge.Reply(env.ID, callID, err); rerr != nil {
		l.Error().Err(rerr).Msg("Failed to answer device event")
	}
}

func (h *Handler) applyDeviceEvent(ctx context.Context, env device.Envelope) (string, error) {
	switch env.Type {
	case device.EvtIncomingCall, device.EvtStartCall:
		id, err := parseOrNewCallID(env.CallID, env.Type == device.EvtStartCall)
		if err != nil {
			return env.CallID, err
		}
		kind, err := domain.ParseMediaKind(env.MediaKind)
		if err != nil {
			return env.CallID, err
		}
		if env.PeerID == "" || env.RoomID == "" {
			return id.String(), fmt.Errorf("peer_id and room_id are required")
		}
		peer, room := domain.UserID(env.PeerID), domain.RoomID(env.RoomID)
		if env.Type == device.EvtIncomingCall {
			return id.String(), h.Coordinator.HandleIncoming(ctx, id, peer, room, kind)
		}
		return id.String(), h.Coordinator.HandleStartOutgoing(ctx, id, peer, room, kind)

	case device.EvtPerformStart, device.EvtPerformAnswer:
		id, err := domain.ParseCallID(env.CallID)
		if err != nil {
			return env.CallID, err
		}
		kind := domain.ActionStart
		if env.Type == device.EvtPerformAnswer {
			kind = domain.ActionAnswer
		}
		return env.CallID, h.Coordinator.OnTelephonyActionFulfilled(ctx, id, kind)

	case device.EvtPerformEnd, device.EvtEndCall:
		id, err := domain.ParseCallID(env.CallID)
		if err != nil {
			return env.CallID, err
		}
		reason, err := domain.ParseEndReason(env.Reason)
		if err != nil {
			return env.CallID, err
		}
		if env.Type == device.EvtPerformEnd {
			// the OS already ended it; no end action back
			h.Bridge.Forget(id)
		}
		err = h.Coordinator.RequestEndCall(ctx, id, reason)
		if env.Type == device.EvtPerformEnd && errors.Is(err, domain.ErrUnknownCall) {
			return env.CallID, nil
		}
		return env.CallID, err

	case device.EvtProviderReset:
		h.Bridge.ForgetAll()
		h.Coordinator.OnProviderReset(ctx)
		return "", nil

	case device.EvtMediaConnected:
		h.Coordinator.OnMediaConnected(ctx, domain.RoomID(env.RoomID))
		return env.CallID, nil

	case device.EvtMediaDisconnected:
		return env.CallID, h.Coordinator.OnMediaDisconnected(ctx, domain.RoomID(env.RoomID), env.Reason)

	default:
		return env.CallID, fmt.Errorf("%w: %q", errUnknownEvent, env.Type)
	}
}

func parseOrNewCallID(s string, allowNew bool) (domain.CallID, error) {
	if s == "" && allowNew {
		return domain.NewCallID(), nil
	}
	return domain.ParseCallID(s)
}
