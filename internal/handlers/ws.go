package handlers

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/crewdeck-dev/crewdeck/internal/types"
	"github.com/crewdeck-dev/crewdeck/internal/utils"
)

var (
	userClients   = make(map[uint]map[*websocket.Conn]bool)
	userClientsMu sync.RWMutex
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// NotifyUser nudges every open socket belonging to the user so the
// client refetches its notification list. Dropped connections are
// pruned as they fail.
func NotifyUser(userID uint) {
	userClientsMu.RLock()
	clients, exists := userClients[userID]
	if !exists || len(clients) == 0 {
		userClientsMu.RUnlock()
		return
	}

	clientsCopy := make([]*websocket.Conn, 0, len(clients))
	for conn := range clients {
		clientsCopy = append(clientsCopy, conn)
	}
	userClientsMu.RUnlock()

	for _, conn := range clientsCopy {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Printf("Failed to set write deadline for notify: %v", err)
			continue
		}

		err := conn.WriteJSON(map[string]string{
			"type":    "notification",
			"message": "You have a new notification",
		})

		if err != nil {
			log.Printf("Failed to notify client: %v", err)
			userClientsMu.Lock()
			if clients, exists := userClients[userID]; exists {
				delete(clients, conn)
				if len(clients) == 0 {
					delete(userClients, userID)
				}
			}
			userClientsMu.Unlock()
			conn.Close()
		}
	}
}

func NotificationStream(c *gin.Context) {
	user, err := utils.GetCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	userID := user.ID

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range types.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set initial read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline in pong handler: %v", err)
		}
		return nil
	})

	userClientsMu.Lock()
	if userClients[userID] == nil {
		userClients[userID] = make(map[*websocket.Conn]bool)
	}
	userClients[userID][conn] = true
	userClientsMu.Unlock()

	defer func() {
		userClientsMu.Lock()

		if clients, exists := userClients[userID]; exists {
			delete(clients, conn)

			if len(clients) == 0 {
				delete(userClients, userID)
			}
		}

		userClientsMu.Unlock()
		conn.Close()

		log.Printf("WebSocket connection closed for user %d", userID)
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Failed to set write deadline for welcome message: %v", err)
		return
	}

	err = conn.WriteJSON(map[string]string{
		"type":    "connected",
		"message": "WebSocket connection established",
		"user_id": fmt.Sprintf("%d", userID),
	})

	if err != nil {
		log.Printf("Failed to send welcome message: %v", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Failed to set write deadline for user %d: %v", userID, err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Ping failed for user %d: %v", userID, err)
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline for user %d: %v", userID, err)
			break
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %d: %v", userID, err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			log.Printf("Received message from user %d: %s", userID, string(message))
		}
	}
}
