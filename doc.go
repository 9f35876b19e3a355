// Package pvparena 提供了一個即時 PvP 小遊戲服務器。
//
// 在同一個進程裡承載兩個回合制對戰遊戲，全部流量走持久的
// WebSocket 連接與命名事件：
//
// Deathroll（骰子淘汰賽）
//
// 雙方議定賭注後輪流擲骰，上限從 1000 開始嚴格遞減：
//   - 擲出 [1, 上限] 的均勻整數，骰出 1 者輸
//   - 否則骰出的值成為對手的新上限
//
// # Blackjack PvP
//
// 雙人對戰二十一點：
//   - 相同賭注鎖定後發牌，每人兩張，P1 先行動
//   - 要牌 / 停牌輪流進行，爆牌自動完成
//   - 雙方完成後結算（雙爆無勝者、單爆對方勝、點數高者勝、平手 push）
//
// 配對系統
//
// 每種遊戲一條嚴格 FIFO 的配對佇列：
//   - 湊滿兩人立即按到達順序配成一個房間
//   - 佇列成員與房間成員在任何時刻互斥
//   - 斷線即棄局：不判定勝負，房間在雙方都離開後回收
//
// 併發安全設計
//
// 每條連接一對讀寫 goroutine，共享狀態分層加鎖：
//   - 每個房間一把互斥鎖，驗證 → 變更 → 廣播在鎖內一次完成
//   - 每條配對佇列自帶序列化邊界
//   - 服務級讀寫鎖只保護容器本身（房間表、會話索引）
//
// 使用範例
//
// 啟動服務器：
//
//	hub := internal.NewHub(config, logger)
//	deathroll := internal.NewDeathroll(hub, internal.NewRand(), 1000, logger)
//	blackjack := internal.NewBlackjack(hub, internal.NewRand(), logger)
//	hub.SetRouter(internal.NewDispatcher(deathroll, blackjack, logger))
//
//	http.HandleFunc("/ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// 事件協議
//
// 進出站消息共用 {"event": <名稱>, "data": <負載>} 信封：
//   - 進站：queue / bet / roll / chat 與 bj_queue / bj_bet / bj_deal /
//     bj_hit / bj_stand / bj_chat
//   - 出站：role / system / chat / result 與 bj_role / bj_system /
//     bj_state / bj_chat / bj_result
//
// 錯誤處理
//
// 核心內不存在致命錯誤：任何違規（非法回合、前置條件不滿足、
// 格式錯誤）最壞的結果都是「狀態不變，給發送者一條通知」，
// 永遠不會污染對手看到的房間視圖。
//
// 配置選項
//
// 支援多種運行時配置：
//   - -config：YAML 配置文件路徑
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package pvparena
