package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one WebSocket connection. Requests are answered in order.
type wsClient struct {
	conn     *websocket.Conn
	handlers *Handlers
	sendChan chan WSResponse
	log      zerolog.Logger
}

// WebSocket streams evaluations over a WebSocket connection.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxBodyBytes)
	client := &wsClient{
		conn:     conn,
		handlers: h,
		sendChan: make(chan WSResponse, 64),
		log:      h.log.With().Str("rid", GetRequestID(r.Context())).Logger(),
	}
	go client.writePump()
	client.readPump(r.Context())
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.sendChan {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

func (c *wsClient) readPump(ctx context.Context) {
	defer func() { close(c.sendChan); c.conn.Close() }()
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *wsClient) handleMessage(ctx context.Context, msg WSMessage) {
	switch msg.Type {
	case "evaluate":
		c.handleEvaluate(ctx, msg)
	case "ping":
		c.sendChan <- WSResponse{Type: "pong", ID: msg.ID}
	default:
		c.sendChan <- WSResponse{Type: "error", ID: msg.ID, Error: "unknown message type"}
	}
}

func (c *wsClient) handleEvaluate(ctx context.Context, msg WSMessage) {
	results, err := c.handlers.svc.Evaluate(ctx, msg.FENs)
	if err != nil {
		if status, _ := errorStatus(err); status == http.StatusInternalServerError {
			c.log.Error().Err(err).Msg("websocket evaluate")
			c.sendChan <- WSResponse{Type: "error", ID: msg.ID, Error: "evaluation failed"}
			return
		}
		c.sendChan <- WSResponse{Type: "error", ID: msg.ID, Error: err.Error()}
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		c.sendChan <- WSResponse{Type: "error", ID: msg.ID, Error: "evaluation failed"}
		return
	}
	c.sendChan <- WSResponse{Type: "result", ID: msg.ID, Results: data}
}
