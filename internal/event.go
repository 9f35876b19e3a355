package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// 事件協議：
//
// 進出站消息共用同一個信封格式：
//
//	{"event": "<名稱>", "data": <負載>}
//
// 負載是自由形式的 JSON（數字、字串或物件），具體格式由事件名稱決定。
// 斷線不是線上事件：由 Hub 在讀取迴圈結束時合成，永遠不從客戶端解析。

// 進站事件名稱
const (
	EventQueue = "queue" // 加入 deathroll 配對佇列
	EventBet   = "bet"   // 設定 deathroll 賭注
	EventRoll  = "roll"  // 擲骰（負載 = 當前上限）
	EventChat  = "chat"  // 房間聊天

	EventBJQueue = "bj_queue" // 加入 blackjack 配對佇列
	EventBJBet   = "bj_bet"   // 設定 blackjack 賭注
	EventBJDeal  = "bj_deal"  // 發牌
	EventBJHit   = "bj_hit"   // 要牌
	EventBJStand = "bj_stand" // 停牌
	EventBJChat  = "bj_chat"  // 房間聊天
)

// 出站事件名稱
const (
	EventRole   = "role"   // 配對成功時告知座位（PlayerA/PlayerB）
	EventSystem = "system" // 系統通知
	EventResult = "result" // deathroll 結果

	EventBJRole   = "bj_role"   // 座位（P1/P2）
	EventBJSystem = "bj_system" // 系統通知
	EventBJState  = "bj_state"  // 完整牌局狀態
	EventBJResult = "bj_result" // 結算結果
)

// Event 出站事件
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// InboundEvent 進站事件（負載延遲解析，由各遊戲處理器決定格式）
type InboundEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Emitter 事件遞送介面
//
// 遊戲邏輯透過這個介面發送事件，不直接依賴 WebSocket：
//   - Hub 是生產環境的實現（見 websocket.go）
//   - 測試使用記錄型的假實現
//
// 廣播以會話列表為單位：房間把「目前仍綁定的玩家」交給 Emitter，
// 已離開的會話自然不在列表內。
type Emitter interface {
	// Unicast 發送事件給單一會話
	Unicast(sessionID string, event Event)

	// Broadcast 發送事件給多個會話
	Broadcast(sessionIDs []string, event Event)
}

// parseIntPayload 解析整數負載
//
// 客戶端可能送 JSON 數字（100）或數字字串（"100"），兩者都接受。
// 其他任何形式都視為格式錯誤。
func parseIntPayload(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.Atoi(strings.TrimSpace(s))
	}

	return 0, fmt.Errorf("負載不是整數: %s", string(raw))
}

// parseStringPayload 解析字串負載（聊天消息）
func parseStringPayload(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("負載不是字串: %w", err)
	}
	return s, nil
}

// rawText 把任意 JSON 純量轉為顯示文字
//
// deathroll 的賭注不做驗證（沿用來源行為），只原樣回顯：
// 字串去掉引號，其餘保留原始 JSON 文本。
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
