package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/hub"
	"github.com/weiawesome/flow-market/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and runs the client's pumps.
func (h *Handler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The connection outlives the request; keep its logger, drop its deadline.
	client := hub.NewClient(context.WithoutCancel(ctx), gonanoid.Must(), h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	l := log.Ctx(client.Context())
	l.Debug().Msg("websocket connected")

	go client.WritePump()
	h.chat.Connect(client.Context(), client)
	go client.ReadPump(h.handleEvent)
}

// handleEvent dispatches one client frame. Malformed or unknown events are
// dropped without a reply.
func (h *Handler) handleEvent(client *hub.Client, raw []byte) {
	ctx := client.Context()
	l := log.Ctx(ctx)

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		l.Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	switch env.Event {
	case domain.EventJoin, domain.EventLeave:
		var p domain.RoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			l.Debug().Err(err).Str("event", env.Event).Msg("ignoring malformed payload")
			return
		}
		if env.Event == domain.EventJoin {
			h.chat.Join(ctx, client, p.Room)
		} else {
			h.chat.Leave(ctx, client, p.Room)
		}

	case domain.EventMessage:
		var p domain.SendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			l.Debug().Err(err).Str("event", env.Event).Msg("ignoring malformed payload")
			return
		}
		if _, err := h.chat.Send(ctx, &p); err != nil {
			l.Error().Err(err).Str(log.FieldRoom, p.Room).Msg("failed to send message")
		}

	default:
		l.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}
