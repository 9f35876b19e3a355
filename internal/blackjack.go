package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Blackjack PvP 規則：
//
//	AwaitingBets → AwaitingDeal → RoundInProgress → RoundSettled
//
//   - 雙方設定相同賭注後才能發牌
//   - 發牌：新建 52 張洗好的牌堆，每人從牌頂抽兩張，P1 先行動
//   - 要牌 / 停牌輪流進行；爆牌（> 21）自動標記完成
//   - 對手已完成時輪次留在自己手上（允許未爆牌者繼續要牌）
//   - 雙方都完成後立即結算
//
// 結算優先序：雙爆 → 無勝者；單爆 → 對方勝；比點數；平手 → push。
// 爆牌的點數在比較時記 0，但回報的仍是真實點數。
//
// 一個房間只承載一局結束的對局：Finished 單調不回退，
// 想再玩必須重新排隊配對（沿用來源行為，見 DESIGN.md）。

const (
	SeatP1 SeatLabel = "P1"
	SeatP2 SeatLabel = "P2"
)

// Card 撲克牌
//
// Value 是固定的 blackjack 點值：數字牌照面值、花牌 10、A 固定 11。
// 軟 A 的降值只發生在 HandValue 的計算裡，發牌時不重估。
type Card struct {
	Rank  string `json:"r"`
	Suit  string `json:"s"`
	Value int    `json:"v"`
	Label string `json:"label"`
}

var (
	deckSuits = []string{"♠", "♥", "♦", "♣"}
	deckRanks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}
)

// NewDeck 創建一副洗好的 52 張牌
//
// 構建順序固定（先花色後點數），之後整副打亂。
// 牌頂 = 切片尾端，抽牌從尾端取。
func NewDeck(rng Rand) []Card {
	deck := make([]Card, 0, 52)
	for _, s := range deckSuits {
		for _, r := range deckRanks {
			deck = append(deck, Card{
				Rank:  r,
				Suit:  s,
				Value: cardValue(r),
				Label: r + s,
			})
		}
	}

	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	return deck
}

// cardValue 獲取點值
func cardValue(rank string) int {
	switch rank {
	case "A":
		return 11
	case "J", "Q", "K":
		return 10
	default:
		v, _ := strconv.Atoi(rank)
		return v
	}
}

// HandValue 計算手牌總點數（軟 A 規則）
//
// 點值總和超過 21 時，每張尚未降值的 A 依序從 11 降為 1，
// 直到不再爆牌或沒有 A 可降。每次呼叫都重新計算，不做快取。
func HandValue(hand []Card) int {
	total := 0
	aces := 0
	for _, c := range hand {
		total += c.Value
		if c.Rank == "A" {
			aces++
		}
	}

	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}

	return total
}

// BlackjackState 牌局狀態負載（bj_state）
type BlackjackState struct {
	Active  SeatLabel `json:"active"`
	P1      []string  `json:"p1"`
	P2      []string  `json:"p2"`
	P1Value int       `json:"p1v"`
	P2Value int       `json:"p2v"`
	Bet     int       `json:"bet"`
	InRound bool      `json:"in_round"`
}

// BlackjackResult 結算負載（bj_result），Winner 為 nil 表示無勝者
type BlackjackResult struct {
	Winner  *SeatLabel `json:"winner"`
	Bet     int        `json:"bet"`
	P1Value int        `json:"p1v"`
	P2Value int        `json:"p2v"`
}

// BlackjackChat 聊天負載（bj_chat）
type BlackjackChat struct {
	Role SeatLabel `json:"role"`
	Msg  string    `json:"msg"`
}

// BlackjackRoom 對局房間
//
// 不變量：InRound 為 true 時 Active 必為 Players 之一；
// Finished 單調不回退。
type BlackjackRoom struct {
	ID       string
	Players  [2]string // 座位順序固定：[0]=P1, [1]=P2
	Bets     map[string]int
	Deck     []Card
	Hands    map[string][]Card
	Done     map[string]bool
	Active   string
	InRound  bool
	Finished bool

	departed map[string]bool
	mu       sync.Mutex
}

func (r *BlackjackRoom) seat(sessionID string) SeatLabel {
	if sessionID == r.Players[0] {
		return SeatP1
	}
	return SeatP2
}

func (r *BlackjackRoom) other(sessionID string) string {
	if sessionID == r.Players[0] {
		return r.Players[1]
	}
	return r.Players[0]
}

// recipients 仍綁定的會話，需持有房間鎖
func (r *BlackjackRoom) recipients() []string {
	out := make([]string, 0, 2)
	for _, p := range r.Players {
		if !r.departed[p] {
			out = append(out, p)
		}
	}
	return out
}

// lockedBet 雙方賭注已設定且相等時回傳議定金額，需持有房間鎖
func (r *BlackjackRoom) lockedBet() (int, bool) {
	a, okA := r.Bets[r.Players[0]]
	b, okB := r.Bets[r.Players[1]]
	if okA && okB && a == b {
		return a, true
	}
	return 0, false
}

// draw 從牌頂抽一張，需持有房間鎖
//
// 牌堆耗盡時換一副新洗的整牌（近似處理，不是連續牌靴的模擬，
// 沿用來源行為）。
func (r *BlackjackRoom) draw(rng Rand) Card {
	if len(r.Deck) == 0 {
		r.Deck = NewDeck(rng)
	}
	c := r.Deck[len(r.Deck)-1]
	r.Deck = r.Deck[:len(r.Deck)-1]
	return c
}

// labels 獲取手牌顯示標籤，需持有房間鎖
func (r *BlackjackRoom) labels(sessionID string) []string {
	hand := r.Hands[sessionID]
	out := make([]string, len(hand))
	for i, c := range hand {
		out[i] = c.Label
	}
	return out
}

// Blackjack blackjack 遊戲服務
type Blackjack struct {
	emitter Emitter
	rng     Rand
	logger  *slog.Logger
	queue   *MatchQueue

	mu          sync.RWMutex
	rooms       map[string]*BlackjackRoom
	sessionRoom map[string]string
}

// NewBlackjack 創建 blackjack 服務
func NewBlackjack(emitter Emitter, rng Rand, logger *slog.Logger) *Blackjack {
	return &Blackjack{
		emitter:     emitter,
		rng:         rng,
		logger:      logger,
		queue:       NewMatchQueue(),
		rooms:       make(map[string]*BlackjackRoom),
		sessionRoom: make(map[string]string),
	}
}

// HandleQueue 加入配對佇列
//
// 綁定在進行中的對局 → 拒絕。綁定在已結束的對局 → 解除舊綁定後
// 允許重新排隊；兩個座位都不再綁定時順手刪除舊房間。
//
// 配對出列與房間綁定在同一個服務寫鎖臨界區內完成：併發的
// 斷線清理要麼看到會話還在佇列，要麼看到已綁定的房間。
func (b *Blackjack) HandleQueue(sessionID string) {
	b.mu.Lock()
	if roomID, bound := b.sessionRoom[sessionID]; bound {
		room := b.rooms[roomID]
		if room != nil {
			room.mu.Lock()
			if !room.Finished {
				room.mu.Unlock()
				b.mu.Unlock()
				b.notify(sessionID, "You are already in an active Blackjack match.")
				return
			}

			// 對局已結束：解除綁定，視同離開舊房間
			delete(b.sessionRoom, sessionID)
			room.departed[sessionID] = true
			empty := len(room.recipients()) == 0
			room.mu.Unlock()

			if empty {
				delete(b.rooms, roomID)
			}
		} else {
			delete(b.sessionRoom, sessionID)
		}
	}

	pair, paired, err := b.queue.Enqueue(sessionID)
	if err != nil {
		b.mu.Unlock()
		b.notify(sessionID, "Already queued.")
		return
	}

	var created *BlackjackRoom
	if paired {
		created = b.createRoom(pair[0], pair[1])
	}
	b.mu.Unlock()

	b.notify(sessionID, "Queued for Blackjack PvP. Waiting for opponent...")

	if created != nil {
		b.announceRoom(created)
	}
}

// createRoom 創建房間並綁定雙方，需持有服務寫鎖
func (b *Blackjack) createRoom(p1, p2 string) *BlackjackRoom {
	room := &BlackjackRoom{
		ID:       "bj_" + uuid.NewString()[:8],
		Players:  [2]string{p1, p2},
		Bets:     make(map[string]int),
		Hands:    map[string][]Card{p1: {}, p2: {}},
		Done:     map[string]bool{p1: false, p2: false},
		Active:   p1,
		departed: make(map[string]bool),
	}

	b.rooms[room.ID] = room
	b.sessionRoom[p1] = room.ID
	b.sessionRoom[p2] = room.ID

	return room
}

// announceRoom 通知雙方座位並廣播配對成功
func (b *Blackjack) announceRoom(room *BlackjackRoom) {
	p1, p2 := room.Players[0], room.Players[1]

	b.logger.Info("blackjack 房間已創建",
		"room_id", room.ID,
		"p1", p1,
		"p2", p2)

	b.emitter.Unicast(p1, Event{Name: EventBJRole, Data: string(SeatP1)})
	b.emitter.Unicast(p2, Event{Name: EventBJRole, Data: string(SeatP2)})
	b.emitter.Broadcast([]string{p1, p2},
		Event{Name: EventBJSystem, Data: "Match found! Both players set the same bet, then Deal."})
}

// HandleBet 設定賭注
//
// blackjack 的賭注必須是正整數（與 deathroll 不同，來源即有此驗證）。
func (b *Blackjack) HandleBet(sessionID string, raw json.RawMessage) {
	room, ok := b.roomBySession(sessionID)
	if !ok {
		b.notify(sessionID, "You are not in a Blackjack match.")
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] {
		return
	}

	if room.Finished {
		b.notify(sessionID, "Match is over. Queue again to play.")
		return
	}

	amount, err := parseIntPayload(raw)
	if err != nil {
		b.notify(sessionID, "Invalid bet amount.")
		return
	}

	if amount <= 0 {
		b.notify(sessionID, "Bet must be greater than 0.")
		return
	}

	room.Bets[sessionID] = amount

	recipients := room.recipients()
	b.emitter.Broadcast(recipients,
		Event{Name: EventBJSystem, Data: fmt.Sprintf("Bet set: %d Diamonds.", amount)})

	if _, locked := room.lockedBet(); locked {
		b.emitter.Broadcast(recipients,
			Event{Name: EventBJSystem, Data: "Bets locked. Click Deal."})
	}
}

// HandleDeal 發牌
//
// 前置條件：賭注已鎖定、沒有進行中的回合。滿足後建新牌堆、
// 各發兩張、P1 先行動，並廣播完整狀態。
func (b *Blackjack) HandleDeal(sessionID string) {
	room, ok := b.roomBySession(sessionID)
	if !ok {
		b.notify(sessionID, "You are not in a Blackjack match.")
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] {
		return
	}

	if room.Finished {
		b.notify(sessionID, "Match is over. Queue again to play.")
		return
	}

	if _, locked := room.lockedBet(); !locked {
		b.notify(sessionID, "Both players must set the same bet before dealing.")
		return
	}

	if room.InRound {
		b.notify(sessionID, "Round already in progress.")
		return
	}

	p1, p2 := room.Players[0], room.Players[1]
	room.Deck = NewDeck(b.rng)
	room.Hands = map[string][]Card{
		p1: {room.draw(b.rng), room.draw(b.rng)},
		p2: {room.draw(b.rng), room.draw(b.rng)},
	}
	room.Done = map[string]bool{p1: false, p2: false}
	room.Active = p1
	room.InRound = true

	b.broadcastState(room)
	b.emitter.Broadcast(room.recipients(),
		Event{Name: EventBJSystem, Data: "Cards dealt. P1 acts first."})
}

// HandleHit 要牌
//
// 爆牌自動標記完成。輪次交給對手，除非對手已完成
// （此時留在自己手上，未爆牌者可以連續要牌）。
// 雙方都完成時立即結算。
func (b *Blackjack) HandleHit(sessionID string) {
	room, ok := b.roomBySession(sessionID)
	if !ok {
		b.notify(sessionID, "You are not in a Blackjack match.")
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] {
		return
	}

	if !room.InRound {
		b.notify(sessionID, "No active round. Click Deal.")
		return
	}

	if sessionID != room.Active {
		b.notify(sessionID, "Not your turn.")
		return
	}

	room.Hands[sessionID] = append(room.Hands[sessionID], room.draw(b.rng))

	if HandValue(room.Hands[sessionID]) > 21 {
		room.Done[sessionID] = true
	}

	other := room.other(sessionID)
	if !room.Done[other] {
		room.Active = other
	} else {
		room.Active = sessionID
	}

	if room.Done[room.Players[0]] && room.Done[room.Players[1]] {
		b.settle(room)
		return
	}

	b.broadcastState(room)
}

// HandleStand 停牌
func (b *Blackjack) HandleStand(sessionID string) {
	room, ok := b.roomBySession(sessionID)
	if !ok {
		b.notify(sessionID, "You are not in a Blackjack match.")
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] {
		return
	}

	if !room.InRound {
		b.notify(sessionID, "No active round. Click Deal.")
		return
	}

	if sessionID != room.Active {
		b.notify(sessionID, "Not your turn.")
		return
	}

	room.Done[sessionID] = true

	other := room.other(sessionID)
	if !room.Done[other] {
		room.Active = other
	}

	if room.Done[room.Players[0]] && room.Done[room.Players[1]] {
		b.settle(room)
		return
	}

	b.broadcastState(room)
}

// HandleChat 房間聊天
func (b *Blackjack) HandleChat(sessionID string, raw json.RawMessage) {
	room, ok := b.roomBySession(sessionID)
	if !ok {
		b.notify(sessionID, "You are not in a Blackjack match.")
		return
	}

	msg, err := parseStringPayload(raw)
	if err != nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.departed[sessionID] {
		return
	}

	b.emitter.Broadcast(room.recipients(),
		Event{Name: EventBJChat, Data: BlackjackChat{Role: room.seat(sessionID), Msg: msg}})
}

// HandleDisconnect 斷線清理（冪等，不判定勝負）
func (b *Blackjack) HandleDisconnect(sessionID string) {
	b.queue.Remove(sessionID)

	b.mu.Lock()
	roomID, ok := b.sessionRoom[sessionID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.sessionRoom, sessionID)
	room := b.rooms[roomID]
	b.mu.Unlock()

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
		b.emitter.Broadcast(remaining,
			Event{Name: EventBJSystem, Data: fmt.Sprintf("%s disconnected.", seat)})
	}
	room.mu.Unlock()

	if len(remaining) == 0 {
		b.mu.Lock()
		delete(b.rooms, roomID)
		b.mu.Unlock()

		b.logger.Info("blackjack 房間已移除", "room_id", roomID)
	}
}

// settle 結算，需持有房間鎖
//
// 爆牌在比較時記 0 分，但 bj_result 回報真實點數。
func (b *Blackjack) settle(room *BlackjackRoom) {
	p1, p2 := room.Players[0], room.Players[1]
	p1v := HandValue(room.Hands[p1])
	p2v := HandValue(room.Hands[p2])
	bet := room.Bets[p1]

	score := func(v int) int {
		if v > 21 {
			return 0
		}
		return v
	}
	s1, s2 := score(p1v), score(p2v)

	var winner *SeatLabel
	var reason string

	switch {
	case p1v > 21 && p2v > 21:
		reason = "Both players bust!"
	case p1v > 21:
		reason = fmt.Sprintf("P1 busts with %d. P2 wins!", p1v)
		winner = seatPtr(SeatP2)
	case p2v > 21:
		reason = fmt.Sprintf("P2 busts with %d. P1 wins!", p2v)
		winner = seatPtr(SeatP1)
	case s1 > s2:
		reason = fmt.Sprintf("P1 (%d) beats P2 (%d).", p1v, p2v)
		winner = seatPtr(SeatP1)
	case s2 > s1:
		reason = fmt.Sprintf("P2 (%d) beats P1 (%d).", p2v, p1v)
		winner = seatPtr(SeatP2)
	default:
		reason = fmt.Sprintf("Push at %d.", p1v)
	}

	recipients := room.recipients()
	b.emitter.Broadcast(recipients, Event{Name: EventBJSystem, Data: reason})
	b.emitter.Broadcast(recipients, Event{Name: EventBJResult, Data: BlackjackResult{
		Winner:  winner,
		Bet:     bet,
		P1Value: p1v,
		P2Value: p2v,
	}})

	room.InRound = false
	room.Finished = true

	b.emitter.Broadcast(recipients,
		Event{Name: EventBJSystem, Data: "Round finished. Queue again for a new opponent."})

	b.logger.Info("blackjack 對局結算",
		"room_id", room.ID,
		"p1v", p1v,
		"p2v", p2v,
		"reason", reason)
}

// broadcastState 廣播完整牌局狀態，需持有房間鎖
func (b *Blackjack) broadcastState(room *BlackjackRoom) {
	p1, p2 := room.Players[0], room.Players[1]
	bet, _ := room.lockedBet()

	b.emitter.Broadcast(room.recipients(), Event{Name: EventBJState, Data: BlackjackState{
		Active:  room.seat(room.Active),
		P1:      room.labels(p1),
		P2:      room.labels(p2),
		P1Value: HandValue(room.Hands[p1]),
		P2Value: HandValue(room.Hands[p2]),
		Bet:     bet,
		InRound: room.InRound,
	}})
}

// RoomOf 獲取會話所在的房間
func (b *Blackjack) RoomOf(sessionID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	roomID, ok := b.sessionRoom[sessionID]
	return roomID, ok
}

// Stats 獲取統計資訊
func (b *Blackjack) Stats() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	finished := 0
	inRound := 0
	for _, room := range b.rooms {
		room.mu.Lock()
		if room.Finished {
			finished++
		}
		if room.InRound {
			inRound++
		}
		room.mu.Unlock()
	}

	return map[string]any{
		"waiting":        b.queue.Len(),
		"rooms":          len(b.rooms),
		"in_round":       inRound,
		"finished_rooms": finished,
	}
}

func (b *Blackjack) roomBySession(sessionID string) (*BlackjackRoom, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	roomID, ok := b.sessionRoom[sessionID]
	if !ok {
		return nil, false
	}
	room, ok := b.rooms[roomID]
	return room, ok
}

func (b *Blackjack) notify(sessionID, text string) {
	b.emitter.Unicast(sessionID, Event{Name: EventBJSystem, Data: text})
}

func seatPtr(s SeatLabel) *SeatLabel {
	return &s
}
