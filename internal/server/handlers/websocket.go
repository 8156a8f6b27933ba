// internal/server/handlers/websocket.go

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"walkabout/internal/domain/poi"
	"walkabout/internal/service/update"
)

// updateClient is one websocket connection listening for POI updates of a
// single category.
type updateClient struct {
	conn     *websocket.Conn
	sub      *update.Subscription
	category poi.Category
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 512,
	}
}

// WebSocketUpgrader is used to upgrade HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// POIUpdatesHandler upgrades the connection and streams newly discovered
// POIs for one category. The server pushes every event for the category;
// the client filters by fingerprint against the polygon it is showing.
func POIUpdatesHandler(channel *update.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, err := poi.ParseCategory(chi.URLParam(r, "category"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Unknown category", err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		client := &updateClient{
			conn:     conn,
			sub:      channel.Subscribe(category),
			category: category,
		}

		log.Printf("New update subscriber for category %s", category)

		go client.writePump()
		go client.readPump()
	}
}

// readPump only exists to notice the peer going away; inbound frames carry
// no meaning on this channel.
func (c *updateClient) readPump() {
	config := DefaultWebSocketConfig()

	defer c.close()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// writePump forwards subscription events to the peer and keeps the
// connection alive with pings.
func (c *updateClient) writePump() {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case event, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// Subscription torn down by the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Failed to marshal update event: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close unregisters the subscription and closes the connection. Safe to
// call from both pumps.
func (c *updateClient) close() {
	c.sub.Close()
	c.conn.Close()

	log.Printf("Update subscriber for category %s disconnected", c.category)
}
