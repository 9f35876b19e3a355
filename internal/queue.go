package internal

import (
	"errors"
	"slices"
	"sync"
)

// ErrAlreadyQueued 會話已在佇列中
var ErrAlreadyQueued = errors.New("會話已在配對佇列中")

// MatchQueue 配對佇列
//
// 每種遊戲一個實例。嚴格 FIFO：只要佇列達到兩人，
// 立即取出最早的兩個會話配成一對，不存在優先級。
//
// 併發控制：佇列自帶互斥鎖，是獨立於房間鎖的序列化邊界。
// 配對在 Enqueue 內原子完成，兩個會話不可能被取出兩次。
type MatchQueue struct {
	mu      sync.Mutex
	waiting []string
}

// NewMatchQueue 創建配對佇列
func NewMatchQueue() *MatchQueue {
	return &MatchQueue{}
}

// Enqueue 加入佇列
//
// 回傳值：
//   - 已在佇列中 → ErrAlreadyQueued，無狀態變化
//   - 湊滿兩人 → paired 為 true，pair 是按到達順序排列的兩個會話
//   - 否則只是排隊等待
func (q *MatchQueue) Enqueue(sessionID string) (pair [2]string, paired bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if slices.Contains(q.waiting, sessionID) {
		return pair, false, ErrAlreadyQueued
	}

	q.waiting = append(q.waiting, sessionID)

	if len(q.waiting) >= 2 {
		pair[0] = q.waiting[0]
		pair[1] = q.waiting[1]
		q.waiting = q.waiting[2:]
		return pair, true, nil
	}

	return pair, false, nil
}

// Remove 移出佇列（斷線清理，冪等）
func (q *MatchQueue) Remove(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := slices.Index(q.waiting, sessionID); i >= 0 {
		q.waiting = slices.Delete(q.waiting, i, i+1)
	}
}

// Len 獲取等待人數
func (q *MatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
