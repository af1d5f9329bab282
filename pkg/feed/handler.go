package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"atelier/pkg/logger"
	"atelier/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler serves the hub over websockets. allowedOrigins of ["*"] accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/auctions", h.watch)
	router.GET("/ws/auctions/:artwork_id", h.watch)
}

// @Summary      Follow auction changes
// @Description  Upgrades to a websocket that streams auction change events, for one artwork or for every auction when artwork_id is omitted.
// @Tags         feed
// @Param        artwork_id  path  string  false  "Artwork ID"
// @Success      101  "Switching Protocols"
// @Failure      400  {object}  response.APIResponse "Invalid artwork id"
// @Router       /ws/auctions/{artwork_id} [get]
func (h *Handler) watch(c *gin.Context) {
	artworkID := c.Param("artwork_id")
	if artworkID != "" {
		if _, err := uuid.Parse(artworkID); err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid artwork id", nil)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	client, err := h.hub.Join(context.WithoutCancel(c.Request.Context()), artworkID, conn)
	if err != nil {
		logger.Error("feed subscribe failed", map[string]any{"artwork_id": artworkID, "error": err.Error()})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "feed unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writeLoop(client)
	go h.readLoop(client)
}

// readLoop only services control frames; viewers never send data.
func (h *Handler) readLoop(client *Client) {
	defer func() {
		h.hub.Leave(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(512)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("feed websocket error", map[string]any{"artwork_id": client.ArtworkID, "error": err.Error()})
			}
			return
		}
	}
}

func (h *Handler) writeLoop(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case e := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.Done:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = client.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
