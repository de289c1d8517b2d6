package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"tiketi/config"
	"tiketi/internal/auth"
	"tiketi/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// InitialFunc returns the message sent right after the socket opens, or nil.
type InitialFunc func(userID uint, instance string) interface{}

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

// UpgradeCheckoutWS streams checkout updates for one UI instance. Browsers
// cannot set headers on websocket requests, so the token and instance come
// from the query string.
func UpgradeCheckoutWS(cfg *config.JWTConfig, allowedOrigins []string, hub *Hub, initial InitialFunc) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		token := c.Query("token")
		if token == "" {
			writeError(conn, "token required")
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			writeError(conn, "invalid token")
			return
		}
		instance := c.Query("instance")
		if instance == "" {
			instance = domain.DefaultInstance
		}
		client := NewClient(domain.SessionKey(claims.UserID, instance), claims.UserID)
		hub.Register(client)
		defer client.Close()

		if initial != nil {
			if msg := initial(claims.UserID, instance); msg != nil {
				if data, err := json.Marshal(msg); err == nil {
					client.enqueue(data)
				}
			}
		}
		go writePump(client, conn)
		readPump(conn)
	}
}

func writeError(conn *websocket.Conn, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, data)
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages; it only exists to notice disconnects.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
