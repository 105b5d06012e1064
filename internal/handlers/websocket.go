package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ndharma28/omega-gaming/internal/config"
	"github.com/ndharma28/omega-gaming/internal/models"
	"github.com/ndharma28/omega-gaming/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler pushes domain events to connected clients. Pushes are
// fire-and-forget hints; the event log and ledger stay the source of truth.
type WebSocketHandler struct {
	hub          *WebSocketHub
	redisService *services.RedisService
	cfg          *config.Config
}

type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
}

type Client struct {
	Address string
	Conn    *websocket.Conn
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewWebSocketHandler(redisService *services.RedisService, cfg *config.Config) *WebSocketHandler {
	hub := &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
	}

	go hub.run()

	return &WebSocketHandler{
		hub:          hub,
		redisService: redisService,
		cfg:          cfg,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	address := c.GetString("address")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	client := &Client{
		Address: address,
		Conn:    conn,
	}

	h.hub.register <- client

	h.sendBalance(client)

	defer func() {
		h.hub.unregister <- client
		conn.Close()
	}()

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if msg.Type == "PING" {
			client.Conn.WriteJSON(Message{
				Type: "PONG",
				Data: gin.H{"timestamp": time.Now().Unix()},
			})
		}
	}
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.clients[client] = true
			log.Printf("Client registered: %s", client.Address)

		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				log.Printf("Client unregistered: %s", client.Address)
			}

		case message := <-hub.broadcast:
			for client := range hub.clients {
				client.Conn.WriteJSON(message)
			}
		}
	}
}

// sendBalance pushes the wallet snapshot to a freshly connected client.
func (h *WebSocketHandler) sendBalance(client *Client) {
	wallet, err := h.redisService.GetWallet(client.Address, h.cfg.StartingBalance, time.Now().Unix())
	if err != nil {
		log.Printf("Failed to load wallet for %s: %v", client.Address, err)
		return
	}

	client.Conn.WriteJSON(Message{
		Type: "WALLET",
		Data: models.BalanceResponse{
			Address:     wallet.Address,
			Balance:     wallet.Balance,
			TotalStaked: wallet.TotalStaked,
			TotalWon:    wallet.TotalWon,
		},
	})
}

// BroadcastEvent implements services.Broadcaster.
func (h *WebSocketHandler) BroadcastEvent(event *models.Event) {
	h.hub.broadcast <- &Message{
		Type: string(event.Name),
		Data: event,
	}
}
