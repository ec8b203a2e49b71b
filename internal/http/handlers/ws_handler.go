package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/tipjar/broker/internal/services"
	"go.uber.org/zap"
)

const submitTimeout = 5 * time.Second

// Submitter accepts inbound frames for the dispatcher.
type Submitter interface {
	Submit(ctx context.Context, msg services.Inbound) error
	SubmitDisconnect(channel services.Channel, handle string) error
}

// Registrar attaches a connection's writer to the notification router.
type Registrar interface {
	Register(handle string, channel services.Channel, sender services.Sender)
}

// WSHandler runs one read loop per websocket connection and hands every
// frame to the dispatcher.
type WSHandler struct {
	dispatcher Submitter
	router     Registrar
	clock      clockwork.Clock
	sendBuffer int
	log        *zap.Logger
}

func NewWSHandler(dispatcher Submitter, router Registrar, sendBuffer int, log *zap.Logger) *WSHandler {
	return &WSHandler{
		dispatcher: dispatcher,
		router:     router,
		clock:      clockwork.NewRealClock(),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

// WSUpgradeMiddleware rejects plain HTTP requests on websocket routes.
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHandler) Streamer() fiber.Handler  { return websocket.New(h.serve(services.ChannelStreamer)) }
func (h *WSHandler) Donator() fiber.Handler   { return websocket.New(h.serve(services.ChannelDonator)) }
func (h *WSHandler) Animation() fiber.Handler { return websocket.New(h.serve(services.ChannelAnimation)) }

func (h *WSHandler) serve(channel services.Channel) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		handle := uuid.New().String()
		log := h.log.With(zap.String("conn", handle), zap.String("channel", string(channel)))

		w := newConnWriter(conn, h.clock, string(channel), h.sendBuffer)
		h.router.Register(handle, channel, w)
		log.Info("connection opened")

		defer func() {
			// Queued behind this connection's frames, so they are handled first.
			if err := h.dispatcher.SubmitDisconnect(channel, handle); err != nil {
				log.Warn("disconnect not dispatched", zap.Error(err))
			}
			w.stop()
			log.Info("connection closed")
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("read failed", zap.Error(err))
				}
				return
			}
			w.touch()

			msg, ok := h.decode(channel, handle, data)
			if !ok {
				w.Send(errorFrame)
				continue
			}
			h.submit(log, msg)
		}
	}
}

// decode turns one text frame into an Inbound. Clients may not inject the
// synthetic disconnect event.
func (h *WSHandler) decode(channel services.Channel, handle string, data []byte) (services.Inbound, bool) {
	var env services.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" || env.Event == services.EventDisconnect {
		return services.Inbound{}, false
	}
	return services.Inbound{
		Channel: channel,
		Handle:  handle,
		Event:   env.Event,
		Data:    env.Data,
		Ack:     env.Ack,
	}, true
}

func (h *WSHandler) submit(log *zap.Logger, msg services.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	if err := h.dispatcher.Submit(ctx, msg); err != nil {
		log.Warn("dispatch queue full, frame dropped", zap.String("event", msg.Event), zap.Error(err))
	}
}

var errorFrame = []byte(`{"event":"error","data":{"message":"malformed frame"}}`)
