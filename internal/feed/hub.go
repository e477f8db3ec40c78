package feed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ClientMsg é a mensagem recebida do cliente WebSocket
type ClientMsg struct {
	Type    string `json:"type"`    // subscribe | unsubscribe | ping
	GroupID string `json:"groupId"` // requerido em subscribe/unsubscribe
}

// Update é o evento de aposta entregue aos clientes inscritos no grupo
type Update struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type"` // wager_created | wager_graded
	Payload any    `json:"payload"`
}

// Hub gerencia conexões WebSocket inscritas por grupo
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// groupID -> conexões
	subs map[string]map[*websocket.Conn]struct{}
	// escrita concorrente no mesmo *websocket.Conn não é permitida
	writeMu sync.Mutex
}

func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*websocket.Conn]struct{}),
	}
}

// HandleWS mantém a conexão lendo subscribe/unsubscribe/ping até o cliente sair
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.GroupID]; !ok {
				h.subs[msg.GroupID] = make(map[*websocket.Conn]struct{})
			}
			h.subs[msg.GroupID][conn] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.unsubscribe(msg.GroupID, conn)
		case "ping":
			h.writeMu.Lock()
			_ = conn.WriteJSON(map[string]string{"type": "pong"})
			h.writeMu.Unlock()
		}
	}

	h.mu.Lock()
	for g, set := range h.subs {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.subs, g)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(groupID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[groupID]; ok {
		delete(m, conn)
		if len(m) == 0 {
			delete(h.subs, groupID)
		}
	}
}

// Subscribers devolve quantas conexões estão inscritas no grupo
func (h *Hub) Subscribers(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[groupID])
}

// Broadcast envia o update para os inscritos no grupo
func (h *Hub) Broadcast(u Update) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[u.GroupID]))
	for c := range h.subs[u.GroupID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, _ := json.Marshal(u)
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, c := range conns {
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}
