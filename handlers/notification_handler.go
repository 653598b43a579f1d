package handlers

import (
	"log"

	"github.com/anjiri1684/course_market/middleware"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ServeWs expects {"type":"auth","token":"..."} as the first frame, then keeps
// the socket registered with the hub until the client goes away.
func (h *Handler) ServeWs(c *websocketcontrib.Conn) {
	var auth authMessage
	if err := c.ReadJSON(&auth); err != nil || auth.Type != "auth" {
		log.Printf("WebSocket auth failed: invalid or missing auth message, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	who, err := middleware.ParseToken(h.JWTSecret, auth.Token)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}

	client := h.Hub.Register(who.UserID, c)
	defer func() {
		h.Hub.Unregister(client)
		c.Close()
	}()
	_ = c.WriteJSON(fiber.Map{"type": "ready"})

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				log.Printf("WebSocket closed for client %s", who.UserID)
			} else {
				log.Printf("WebSocket read error for client %s: %v", who.UserID, err)
			}
			return
		}
	}
}
