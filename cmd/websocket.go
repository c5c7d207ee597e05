package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bookstoreBack/internal/models"
)

const (
	readLimit     = 1 << 20
	readDeadline  = 120 * time.Second
	writeDeadline = 5 * time.Second
	pingInterval  = 15 * time.Second
)

// entitlementPush is the single frame type the server sends: a full
// snapshot, so a client that missed frames is still consistent.
type entitlementPush struct {
	Type        string             `json:"type"`
	Entitlement models.Entitlement `json:"entitlement"`
}

type directPush struct {
	userID int
	push   entitlementPush
}

type unreg struct {
	userID int
	conn   *websocket.Conn
}

type Client struct {
	ID     int
	Socket *websocket.Conn
}

// WebSocketManager delivers live entitlement snapshots to connected
// storefront clients. One socket per user; a newer connection replaces
// the old one.
type WebSocketManager struct {
	clients    map[int]*websocket.Conn
	direct     chan directPush
	register   chan Client
	unregister chan unreg
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[int]*websocket.Conn),
		direct:     make(chan directPush),
		register:   make(chan Client),
		unregister: make(chan unreg),
	}
}

// PushEntitlements queues a snapshot for the user's open socket, if any.
func (ws *WebSocketManager) PushEntitlements(userID int, e models.Entitlement) {
	ws.direct <- directPush{userID: userID, push: entitlementPush{Type: "entitlements", Entitlement: e}}
}

// Все операции с clients — только здесь.
func (ws *WebSocketManager) Run() {
	for {
		select {
		case client := <-ws.register:
			// если уже есть сокет у этого пользователя — закрываем старый
			if old, ok := ws.clients[client.ID]; ok && old != nil && old != client.Socket {
				_ = old.Close()
			}
			ws.clients[client.ID] = client.Socket
			log.Printf("WS register user=%d", client.ID)

		case u := <-ws.unregister:
			// удаляем только если совпадает текущий сокет
			if cur, ok := ws.clients[u.userID]; ok && cur == u.conn {
				_ = cur.Close()
				delete(ws.clients, u.userID)
				log.Printf("WS unregister user=%d", u.userID)
			}

		case dm := <-ws.direct:
			if conn, ok := ws.clients[dm.userID]; ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := conn.WriteJSON(dm.push); err != nil {
					log.Printf("direct send error to=%d: %v", dm.userID, err)
					_ = conn.Close()
					delete(ws.clients, dm.userID)
				}
			} else {
				log.Printf("direct skip: user=%d offline", dm.userID)
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
}

// WebSocketHandler upgrades the connection for an authenticated user.
// The client only listens; inbound frames besides pong/close are ignored.
func (app *application) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	app.wsManager.register <- Client{ID: userID, Socket: conn}

	go pingLoop(app.wsManager, conn, userID)
	go drainWebSocket(conn, userID, app.wsManager)
}

func pingLoop(ws *WebSocketManager, conn *websocket.Conn, uid int) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for range t.C {
		_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			_ = writeClose(conn, websocket.CloseGoingAway, "ping error")
			ws.unregister <- unreg{userID: uid, conn: conn}
			return
		}
	}
}

// drainWebSocket keeps the read side alive so control frames are
// processed, and unregisters on close.
func drainWebSocket(conn *websocket.Conn, userID int, wsManager *WebSocketManager) {
	defer func() {
		wsManager.unregister <- unreg{userID: userID, conn: conn}
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// аккуратная отправка close-фрейма
func writeClose(conn *websocket.Conn, code int, reason string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeDeadline),
	)
}
