package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// Client merepresentasikan klien WebSocket.
type Client struct {
	Conn *websocket.Conn
	Mu   sync.Mutex
}

// ChangeEvent dikirim ke semua klien saat baris pada tabel yang dipantau
// (tasks, notifications) berubah. Klien melakukan re-fetch saat menerimanya;
// tidak ada replay atau jaminan urutan.
type ChangeEvent struct {
	Table  string `json:"table"`
	Action string `json:"action"`
	ID     int    `json:"id"`
}

// Hub mengelola koneksi WebSocket.
type Hub struct {
	Clients    map[*Client]bool
	Broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
}

// NewHub membuat instance Hub baru.
func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Broadcast:  make(chan []byte, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// BroadcastChange mengirim ChangeEvent ke semua klien. Best-effort: jika hub
// belum berjalan atau buffer penuh, event dibuang.
func (h *Hub) BroadcastChange(table, action string, id int) {
	if h == nil {
		return
	}
	message, err := json.Marshal(ChangeEvent{Table: table, Action: action, ID: id})
	if err != nil {
		return
	}
	select {
	case h.Broadcast <- message:
	default:
	}
}

// Run menjalankan loop Hub untuk mengelola register, unregister, dan Broadcast.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Clients[client] = true
		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				client.Conn.Close()
			}
		case message := <-h.Broadcast:
			for client := range h.Clients {
				client.Mu.Lock()
				err := client.Conn.WriteMessage(websocket.TextMessage, message)
				client.Mu.Unlock()
				if err != nil {
					delete(h.Clients, client)
					client.Conn.Close()
				}
			}
		}
	}
}
