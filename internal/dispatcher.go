package internal

import "log/slog"

// Dispatcher 事件調度器
//
// 進站事件的唯一入口：按事件名稱路由到對應遊戲的處理器。
// 兩個遊戲服務由外部注入（而非套件級全域），
// 調度器本身無狀態、無鎖，併發安全性由各服務自行保證。
type Dispatcher struct {
	deathroll *Deathroll
	blackjack *Blackjack
	logger    *slog.Logger
}

// NewDispatcher 創建事件調度器
func NewDispatcher(deathroll *Deathroll, blackjack *Blackjack, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		deathroll: deathroll,
		blackjack: blackjack,
		logger:    logger,
	}
}

// Dispatch 路由進站事件
//
// 未知事件名稱記錄後忽略，不回應、不影響其他會話。
func (d *Dispatcher) Dispatch(sessionID string, event InboundEvent) {
	switch event.Name {
	case EventQueue:
		d.deathroll.HandleQueue(sessionID)
	case EventBet:
		d.deathroll.HandleBet(sessionID, event.Data)
	case EventRoll:
		d.deathroll.HandleRoll(sessionID, event.Data)
	case EventChat:
		d.deathroll.HandleChat(sessionID, event.Data)

	case EventBJQueue:
		d.blackjack.HandleQueue(sessionID)
	case EventBJBet:
		d.blackjack.HandleBet(sessionID, event.Data)
	case EventBJDeal:
		d.blackjack.HandleDeal(sessionID)
	case EventBJHit:
		d.blackjack.HandleHit(sessionID)
	case EventBJStand:
		d.blackjack.HandleStand(sessionID)
	case EventBJChat:
		d.blackjack.HandleChat(sessionID, event.Data)

	default:
		d.logger.Debug("收到未知事件",
			"event", event.Name,
			"session_id", sessionID)
	}
}

// Disconnect 處理斷線
//
// 斷線走與其他事件相同的路徑：轉發給兩個遊戲服務，
// 各自冪等地清理佇列與房間（一個會話最多屬於每種遊戲各一局）。
func (d *Dispatcher) Disconnect(sessionID string) {
	d.deathroll.HandleDisconnect(sessionID)
	d.blackjack.HandleDisconnect(sessionID)
}
