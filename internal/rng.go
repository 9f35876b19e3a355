package internal

import "math/rand/v2"

// Rand 隨機來源
//
// 兩個遊戲都依賴均勻抽樣：deathroll 擲骰、blackjack 洗牌。
// 抽出介面的目的只有一個：測試時注入腳本化的結果
// （固定的骰點、固定的牌序），生產環境永遠用 SystemRand。
type Rand interface {
	// IntN 回傳 [0, n) 的均勻整數，n 必須大於 0
	IntN(n int) int

	// Shuffle 就地打亂 n 個元素
	Shuffle(n int, swap func(i, j int))
}

// SystemRand 基於 math/rand/v2 的實現
//
// 使用套件級函數而非 *rand.Rand：套件級函數是併發安全的，
// 多個房間可以同時擲骰、洗牌而不需要額外的鎖。
type SystemRand struct{}

func (SystemRand) IntN(n int) int {
	return rand.IntN(n)
}

func (SystemRand) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

// NewRand 創建預設隨機來源
func NewRand() Rand {
	return SystemRand{}
}
