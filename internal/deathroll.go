package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Deathroll PvP 規則：
//
//	WaitingForBet → RollingInProgress → Finished
//
//   - 配對成功後雙方先議定相同賭注
//   - PlayerA 從上限 1000 開始擲骰，骰出 [1, 上限] 的均勻整數
//   - 骰出 1 → 擲骰者輸，對局結束
//   - 否則骰出的值成為新上限，輪到對手
//
// 上限嚴格遞減，對局必然在有限步內結束。
//
// 併發控制：
//   - 服務的 RWMutex 保護 rooms 與 sessionRoom 兩個容器
//   - 每個房間自帶互斥鎖，驗證 → 變更 → 廣播在鎖內一次完成
//   - 鎖順序固定為 服務鎖 → 房間鎖，不反向嵌套

// SeatLabel 座位標籤（房間相對角色，配對時分配）
type SeatLabel string

const (
	SeatPlayerA SeatLabel = "PlayerA" // 先排隊者
	SeatPlayerB SeatLabel = "PlayerB"
)

// DeathrollResult 對局結果負載
type DeathrollResult struct {
	Winner SeatLabel `json:"winner"`
	Loser  SeatLabel `json:"loser"`
	Bet    string    `json:"bet"`
}

// DeathrollRoom 對局房間
//
// 不變量：
//   - Turn 永遠是 Players 之一
//   - CurrentMax >= 1
//   - Finished 一旦為 true 不再回退，之後任何擲骰都不改變狀態
type DeathrollRoom struct {
	ID         string
	Players    [2]string         // 座位順序固定：[0]=PlayerA, [1]=PlayerB
	Bets       map[string]string // 會話 → 賭注原始文本（不驗證，沿用來源行為）
	CurrentMax int
	Turn       string
	Finished   bool

	departed map[string]bool // 已斷線的座位；兩個座位都離開後房間刪除
	mu       sync.Mutex
}

// seat 獲取會話的座位標籤
func (r *DeathrollRoom) seat(sessionID string) SeatLabel {
	if sessionID == r.Players[0] {
		return SeatPlayerA
	}
	return SeatPlayerB
}

// other 獲取對手會話
func (r *DeathrollRoom) other(sessionID string) string {
	if sessionID == r.Players[0] {
		return r.Players[1]
	}
	return r.Players[0]
}

// recipients 獲取仍綁定的會話（廣播對象），需持有房間鎖
func (r *DeathrollRoom) recipients() []string {
	out := make([]string, 0, 2)
	for _, p := range r.Players {
		if !r.departed[p] {
			out = append(out, p)
		}
	}
	return out
}

// betsLocked 雙方賭注都已設定且相等，需持有房間鎖
func (r *DeathrollRoom) betsLocked() bool {
	a, okA := r.Bets[r.Players[0]]
	b, okB := r.Bets[r.Players[1]]
	return okA && okB && a == b
}

// Deathroll deathroll 遊戲服務
//
// 服務擁有自己的容器（房間表、會話索引、配對佇列），
// 由調度器注入使用，不存在套件級共享狀態。
type Deathroll struct {
	emitter     Emitter
	rng         Rand
	logger      *slog.Logger
	startingMax int
	queue       *MatchQueue

	mu          sync.RWMutex
	rooms       map[string]*DeathrollRoom // roomID → Room
	sessionRoom map[string]string         // sessionID → roomID
}

// NewDeathroll 創建 deathroll 服務
func NewDeathroll(emitter Emitter, rng Rand, startingMax int, logger *slog.Logger) *Deathroll {
	return &Deathroll{
		emitter:     emitter,
		rng:         rng,
		logger:      logger,
		startingMax: startingMax,
		queue:       NewMatchQueue(),
		rooms:       make(map[string]*DeathrollRoom),
		sessionRoom: make(map[string]string),
	}
}

// HandleQueue 加入配對佇列
//
// 佇列成員與房間成員互斥：已在對局中的會話不能排隊。
// 湊滿兩人立即按到達順序配對。
//
// 配對出列與房間綁定在同一個服務寫鎖臨界區內完成：併發的
// 斷線清理要麼看到會話還在佇列，要麼看到已綁定的房間，
// 不存在兩邊都看不到、斷線白跑一趟的窗口。
func (d *Deathroll) HandleQueue(sessionID string) {
	d.mu.Lock()
	if _, inRoom := d.sessionRoom[sessionID]; inRoom {
		d.mu.Unlock()
		d.notify(sessionID, "You are already in a match.")
		return
	}

	pair, paired, err := d.queue.Enqueue(sessionID)
	if err != nil {
		d.mu.Unlock()
		d.notify(sessionID, "Already queued.")
		return
	}

	var room *DeathrollRoom
	if paired {
		room = d.createRoom(pair[0], pair[1])
	}
	d.mu.Unlock()

	d.notify(sessionID, "Queued. Waiting for opponent...")

	if room != nil {
		d.announceRoom(room)
	}
}

// createRoom 創建房間並綁定雙方，需持有服務寫鎖
func (d *Deathroll) createRoom(playerA, playerB string) *DeathrollRoom {
	room := &DeathrollRoom{
		ID:         "room_" + uuid.NewString()[:8],
		Players:    [2]string{playerA, playerB},
		Bets:       make(map[string]string),
		CurrentMax: d.startingMax,
		Turn:       playerA,
		departed:   make(map[string]bool),
	}

	d.rooms[room.ID] = room
	d.sessionRoom[playerA] = room.ID
	d.sessionRoom[playerB] = room.ID

	return room
}

// announceRoom 告知各自的座位，再廣播配對成功
func (d *Deathroll) announceRoom(room *DeathrollRoom) {
	playerA, playerB := room.Players[0], room.Players[1]

	d.logger.Info("deathroll 房間已創建",
		"room_id", room.ID,
		"player_a", playerA,
		"player_b", playerB,
		"starting_max", d.startingMax)

	d.emitter.Unicast(playerA, Event{Name: EventRole, Data: string(SeatPlayerA)})
	d.emitter.Unicast(playerB, Event{Name: EventRole, Data: string(SeatPlayerB)})
	d.emitter.Broadcast([]string{playerA, playerB},
		Event{Name: EventSystem, Data: "Match found! Agree on a bet."})
}

// HandleBet 設定賭注
//
// 賭注不做金額驗證，原樣記錄並回顯（已知的來源行為，見 DESIGN.md）。
// 雙方都設定且相等時廣播鎖定通知。
func (d *Deathroll) HandleBet(sessionID string, raw json.RawMessage) {
	room, ok := d.roomBySession(sessionID)
	if !ok {
		d.notify(sessionID, "You are not in a match.")
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] {
		return
	}

	value := rawText(raw)
	room.Bets[sessionID] = value

	recipients := room.recipients()
	d.emitter.Broadcast(recipients,
		Event{Name: EventSystem, Data: fmt.Sprintf("Bet set: %sg", value)})

	if room.betsLocked() {
		d.emitter.Broadcast(recipients,
			Event{Name: EventSystem, Data: fmt.Sprintf("Bets locked. Type /roll %d to start.", room.CurrentMax)})
	}
}

// HandleRoll 擲骰
//
// 接受條件（缺一不可，違反只通知發送者，不改狀態）：
//   - 發送者是當前 Turn 持有者
//   - 房間未結束
//   - 雙方賭注已鎖定
//   - 請求值恰好等於當前上限
func (d *Deathroll) HandleRoll(sessionID string, raw json.RawMessage) {
	maxRoll, err := parseIntPayload(raw)
	if err != nil {
		d.notify(sessionID, "Invalid roll value.")
		return
	}

	room, ok := d.roomBySession(sessionID)
	if !ok {
		d.notify(sessionID, "Not your turn (or you're not in a match).")
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] || sessionID != room.Turn {
		d.notify(sessionID, "Not your turn (or you're not in a match).")
		return
	}

	if room.Finished {
		d.notify(sessionID, "The match is over. You can keep chatting here.")
		return
	}

	if !room.betsLocked() {
		d.notify(sessionID, "Both players must set the same bet before rolling.")
		return
	}

	if maxRoll != room.CurrentMax {
		d.notify(sessionID, fmt.Sprintf("Invalid roll. You must /roll %d.", room.CurrentMax))
		return
	}

	draw := d.rng.IntN(maxRoll) + 1
	seat := room.seat(sessionID)
	recipients := room.recipients()

	d.emitter.Broadcast(recipients,
		Event{Name: EventChat, Data: fmt.Sprintf("%s rolled %d (1–%d)", seat, draw, maxRoll)})

	if draw == 1 {
		winner := room.seat(room.other(sessionID))
		bet := room.Bets[room.Players[0]]

		d.emitter.Broadcast(recipients,
			Event{Name: EventSystem, Data: fmt.Sprintf("%s loses the deathroll.", seat)})
		d.emitter.Broadcast(recipients,
			Event{Name: EventResult, Data: DeathrollResult{Winner: winner, Loser: seat, Bet: bet}})

		room.Finished = true

		d.logger.Info("deathroll 對局結束",
			"room_id", room.ID,
			"winner", winner,
			"loser", seat)
		return
	}

	// 骰出的值成為新上限，輪到對手（嚴格遞減）
	room.CurrentMax = draw
	room.Turn = room.other(sessionID)
}

// HandleChat 房間聊天
func (d *Deathroll) HandleChat(sessionID string, raw json.RawMessage) {
	room, ok := d.roomBySession(sessionID)
	if !ok {
		d.notify(sessionID, "You are not in a match.")
		return
	}

	msg, err := parseStringPayload(raw)
	if err != nil || strings.TrimSpace(msg) == "" {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] {
		return
	}

	d.emitter.Broadcast(room.recipients(),
		Event{Name: EventChat, Data: fmt.Sprintf("%s: %s", room.seat(sessionID), strings.TrimSpace(msg))})
}

// HandleDisconnect 斷線清理
//
// 冪等：同一會話重複斷線只處理一次。進行中的對局不判定勝負，
// 只標記座位離開；兩個座位都離開後刪除房間。
func (d *Deathroll) HandleDisconnect(sessionID string) {
	d.queue.Remove(sessionID)

	d.mu.Lock()
	roomID, ok := d.sessionRoom[sessionID]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.sessionRoom, sessionID)
	room := d.rooms[roomID]
	d.mu.Unlock()

	if room == nil {
		return
	}

	room.mu.Lock()
	if room.departed[sessionID] {
		room.mu.Unlock()
		return
	}
	room.departed[sessionID] = true
	seat := room.seat(sessionID)
	remaining := room.recipients()

	if len(remaining) > 0 {
		d.emitter.Broadcast(remaining,
			Event{Name: EventSystem, Data: fmt.Sprintf("%s leaves the instance.", seat)})
	}
	room.mu.Unlock()

	if len(remaining) == 0 {
		d.mu.Lock()
		delete(d.rooms, roomID)
		d.mu.Unlock()

		d.logger.Info("deathroll 房間已移除", "room_id", roomID)
	}
}

// RoomOf 獲取會話所在的房間
func (d *Deathroll) RoomOf(sessionID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	roomID, ok := d.sessionRoom[sessionID]
	return roomID, ok
}

// Stats 獲取統計資訊
func (d *Deathroll) Stats() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	finished := 0
	for _, room := range d.rooms {
		room.mu.Lock()
		if room.Finished {
			finished++
		}
		room.mu.Unlock()
	}

	return map[string]any{
		"waiting":        d.queue.Len(),
		"rooms":          len(d.rooms),
		"finished_rooms": finished,
	}
}

// roomBySession 通過會話查找房間
func (d *Deathroll) roomBySession(sessionID string) (*DeathrollRoom, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	roomID, ok := d.sessionRoom[sessionID]
	if !ok {
		return nil, false
	}
	room, ok := d.rooms[roomID]
	return room, ok
}

// notify 單播系統通知
func (d *Deathroll) notify(sessionID, text string) {
	d.emitter.Unicast(sessionID, Event{Name: EventSystem, Data: text})
}
