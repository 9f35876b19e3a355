package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 連接層設計：
//
//   - 一條連接 = 一個會話，令牌由服務器生成（uuid），對客戶端不透明
//   - Hub 集中持有 sessionID → Connection 的註冊表（連接註冊中心）
//   - 每條連接兩個 goroutine：readPump 解析進站事件交給調度器，
//     writePump 消費緩衝 channel 並維持 Ping/Pong 心跳
//   - 心跳：54 秒 Ping / 60 秒讀取超時（避開代理的 60 秒閾值，留余量）
//   - 斷線由讀取迴圈結束合成，sync.Once 保證每個會話恰好調度一次
//
// Hub 同時是遊戲邏輯的 Emitter：單播查表直送，廣播對列表逐一發送。
// 發送一律非阻塞：慢消費者的緩衝滿了就丟消息，不拖累同房間的對手。

// Router 進站事件路由（由 Dispatcher 實現）
type Router interface {
	Dispatch(sessionID string, event InboundEvent)
	Disconnect(sessionID string)
}

// Hub WebSocket 連接中心
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   Router

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	sendBuffer   int

	mu          sync.RWMutex
	connections map[string]*Connection // sessionID → Connection
}

// Connection 一條 WebSocket 連接（即一個會話）
type Connection struct {
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
	LastPing  time.Time

	mu             sync.Mutex
	closeOnce      sync.Once // Send channel 只關閉一次
	disconnectOnce sync.Once // 斷線清理只調度一次
}

// NewHub 創建連接中心
func NewHub(config *Config, logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: config.WebSocket.PingInterval,
		pongWait:     config.WebSocket.PongWait,
		writeWait:    config.WebSocket.WriteWait,
		sendBuffer:   config.WebSocket.SendBuffer,
		connections:  make(map[string]*Connection),
	}
}

// SetRouter 注入調度器
//
// Hub 先於遊戲服務創建（服務需要 Emitter），調度器後注入。
// 必須在開始服務前完成。
func (hub *Hub) SetRouter(router Router) {
	hub.router = router
}

// ServeWS 處理 WebSocket 連接
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		SessionID: uuid.NewString(),
		Conn:      conn,
		Send:      make(chan []byte, hub.sendBuffer),
		Hub:       hub,
		LastPing:  time.Now(),
	}

	hub.register(connection)

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"session_id", connection.SessionID,
		"remote", r.RemoteAddr)
}

// register 註冊連接
func (hub *Hub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.SessionID] = conn
}

// unregister 取消註冊連接
func (hub *Hub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.connections[conn.SessionID]; exists && actual == conn {
		delete(hub.connections, conn.SessionID)
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
	}
}

// Unicast 發送事件給單一會話
func (hub *Hub) Unicast(sessionID string, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event.Name)
		return
	}

	hub.mu.RLock()
	conn, exists := hub.connections[sessionID]
	hub.mu.RUnlock()

	if exists {
		conn.trySend(message)
	}
}

// Broadcast 發送事件給多個會話
func (hub *Hub) Broadcast(sessionIDs []string, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event.Name)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, sessionID := range sessionIDs {
		if conn, exists := hub.connections[sessionID]; exists {
			conn.trySend(message)
		}
	}
}

// trySend 非阻塞發送
func (c *Connection) trySend(message []byte) {
	select {
	case c.Send <- message:
	default:
		// 緩衝區滿了，丟棄消息（慢消費者不拖累對手）
		c.Hub.logger.Warn("連接緩衝區滿",
			"session_id", c.SessionID)
	}
}

// Stop 停止連接中心
//
// 關閉所有底層連接；各自的 readPump 隨之退出並走正常的
// 斷線清理路徑（調度 Disconnect、取消註冊）。
func (hub *Hub) Stop() {
	hub.mu.RLock()
	conns := make([]*Connection, 0, len(hub.connections))
	for _, conn := range hub.connections {
		conns = append(conns, conn)
	}
	hub.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}

	hub.logger.Info("WebSocket Hub 已停止")
}

// ConnectionCount 獲取當前連接數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// readPump 讀取客戶端消息
//
// 心跳（讀取端）：60 秒內未收到任何消息（包括 Pong）即視為死連接。
// 收到 Pong 重置超時，配合 writePump 的 54 秒 Ping。
func (c *Connection) readPump() {
	defer func() {
		// 斷線清理恰好一次，對任何退出路徑都成立
		c.disconnectOnce.Do(func() {
			c.Hub.router.Disconnect(c.SessionID)
		})
		c.Hub.unregister(c)
		c.Conn.Close()

		c.Hub.logger.Info("WebSocket 連接關閉", "session_id", c.SessionID)
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(c.Hub.pongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.Hub.pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"session_id", c.SessionID)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var event InboundEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.Hub.logger.Error("解析客戶端消息失敗",
				"error", err,
				"session_id", c.SessionID)
			continue
		}

		// 同一連接的事件天然串行：一個事件處理到底才讀下一個，
		// 不同連接之間任意交錯（臨界區由服務與房間鎖保證）
		c.Hub.router.Dispatch(c.SessionID, event)
	}
}

// writePump 寫入消息到客戶端
//
// 心跳（發送端）：定期 Ping，客戶端自動回 Pong，readPump 重置超時。
// 業務消息經緩衝 channel 異步發送，批量清空隊列減少系統調用。
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.Conn.SetWriteDeadline(deadline); err == nil {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
