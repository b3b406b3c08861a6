package ws

import (
	"context"
	"sync"

	"agenda_backend/internal/logger"
	"agenda_backend/internal/services/payments"
)

// WebSocketManager держит подключения экранов оплаты. Один клиент — один
// пользователь; события статуса платежа адресуются владельцу бронирования.
type WebSocketManager struct {
	clients    map[string][]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (manager *WebSocketManager) Run() {
	for {
		select {
		case client := <-manager.register:
			manager.mu.Lock()
			manager.clients[client.UserID] = append(manager.clients[client.UserID], client)
			manager.mu.Unlock()
			logger.Info("ws client registered", "user_id", client.UserID)

		case client := <-manager.unregister:
			manager.mu.Lock()
			conns := manager.clients[client.UserID]
			for i, c := range conns {
				if c == client {
					close(c.Send)
					manager.clients[client.UserID] = append(conns[:i], conns[i+1:]...)
					break
				}
			}
			if len(manager.clients[client.UserID]) == 0 {
				delete(manager.clients, client.UserID)
			}
			manager.mu.Unlock()
			logger.Info("ws client unregistered", "user_id", client.UserID)
		}
	}
}

// wsMessage — кадр, уходящий на экран оплаты.
type wsMessage struct {
	Type    string              `json:"type"`
	Payload payments.StatusEvent `json:"payload"`
}

// PaymentStatusChanged реализует payments.Notifier: пуш события статуса
// всем подключениям владельца бронирования.
func (manager *WebSocketManager) PaymentStatusChanged(ctx context.Context, evt payments.StatusEvent) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()

	for _, client := range manager.clients[evt.OwnerID] {
		select {
		case client.Send <- wsMessage{Type: "payment_status", Payload: evt}:
		default:
			// Канал заполнен, клиент отключается
			go func(c *Client) {
				manager.unregister <- c
			}(client)
		}
	}
}
