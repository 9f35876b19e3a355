package internal_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/koopa0/pvp-arena/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newDeathroll(rng internal.Rand) (*internal.Deathroll, *recordingEmitter) {
	emitter := newRecordingEmitter()
	if rng == nil {
		rng = internal.NewRand()
	}
	return internal.NewDeathroll(emitter, rng, 1000, testLogger()), emitter
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

// TestDeathroll_QueueAndMatch 測試排隊與配對
func TestDeathroll_QueueAndMatch(t *testing.T) {
	d, emitter := newDeathroll(nil)

	d.HandleQueue("s1")
	assert.Equal(t, "Queued. Waiting for opponent...", emitter.lastTextTo(internal.EventSystem, "s1"))

	// 重複排隊
	d.HandleQueue("s1")
	assert.Equal(t, "Already queued.", emitter.lastTextTo(internal.EventSystem, "s1"))

	// 第二人到達，立即配對
	d.HandleQueue("s2")

	roles := emitter.named(internal.EventRole)
	require.Len(t, roles, 2)
	assert.Equal(t, []string{"s1"}, roles[0].to)
	assert.Equal(t, "PlayerA", roles[0].event.Data)
	assert.Equal(t, []string{"s2"}, roles[1].to)
	assert.Equal(t, "PlayerB", roles[1].event.Data)

	matchFound, ok := emitter.last(internal.EventSystem)
	require.True(t, ok)
	assert.Equal(t, "Match found! Agree on a bet.", matchFound.event.Data)
	assert.ElementsMatch(t, []string{"s1", "s2"}, matchFound.to)

	// 雙方綁定到同一個房間，且佇列已清空
	room1, ok := d.RoomOf("s1")
	require.True(t, ok)
	room2, ok := d.RoomOf("s2")
	require.True(t, ok)
	assert.Equal(t, room1, room2)
	assert.Equal(t, 0, d.Stats()["waiting"])

	// 對局中不能再排隊
	d.HandleQueue("s1")
	assert.Equal(t, "You are already in a match.", emitter.lastTextTo(internal.EventSystem, "s1"))
}

// TestDeathroll_Betting 測試賭注設定與鎖定
func TestDeathroll_Betting(t *testing.T) {
	d, emitter := newDeathroll(nil)

	// 未配對時下注
	d.HandleBet("s9", raw(`100`))
	assert.Equal(t, "You are not in a match.", emitter.lastTextTo(internal.EventSystem, "s9"))

	d.HandleQueue("s1")
	d.HandleQueue("s2")
	emitter.reset()

	// 第一注只回顯，不鎖定
	d.HandleBet("s1", raw(`100`))
	assert.Equal(t, "Bet set: 100g", emitter.lastTextTo(internal.EventSystem, "s1"))

	// 不相等的第二注不鎖定
	d.HandleBet("s2", raw(`250`))
	assert.Equal(t, "Bet set: 250g", emitter.lastTextTo(internal.EventSystem, "s2"))
	for _, text := range emitter.textsTo(internal.EventSystem, "s1") {
		assert.NotContains(t, text, "Bets locked")
	}

	// 重新提交相等的賭注（數字字串與數字等價）後鎖定
	d.HandleBet("s2", raw(`"100"`))
	assert.Equal(t, "Bets locked. Type /roll 1000 to start.", emitter.lastTextTo(internal.EventSystem, "s2"))
}

// TestDeathroll_RollValidation 測試擲骰的拒絕路徑（狀態一律不變）
func TestDeathroll_RollValidation(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(d *internal.Deathroll)
		roller   string
		payload  string
		expected string
	}{
		{
			name:     "not in a match",
			setup:    func(d *internal.Deathroll) {},
			roller:   "s9",
			payload:  `1000`,
			expected: "Not your turn (or you're not in a match).",
		},
		{
			name: "not turn holder",
			setup: func(d *internal.Deathroll) {
				d.HandleBet("s1", raw(`100`))
				d.HandleBet("s2", raw(`100`))
			},
			roller:   "s2",
			payload:  `1000`,
			expected: "Not your turn (or you're not in a match).",
		},
		{
			name: "bets not locked",
			setup: func(d *internal.Deathroll) {
				d.HandleBet("s1", raw(`100`))
			},
			roller:   "s1",
			payload:  `1000`,
			expected: "Both players must set the same bet before rolling.",
		},
		{
			name: "wrong ceiling names required value",
			setup: func(d *internal.Deathroll) {
				d.HandleBet("s1", raw(`100`))
				d.HandleBet("s2", raw(`100`))
			},
			roller:   "s1",
			payload:  `500`,
			expected: "Invalid roll. You must /roll 1000.",
		},
		{
			name: "malformed payload",
			setup: func(d *internal.Deathroll) {
				d.HandleBet("s1", raw(`100`))
				d.HandleBet("s2", raw(`100`))
			},
			roller:   "s1",
			payload:  `"abc"`,
			expected: "Invalid roll value.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, emitter := newDeathroll(&scriptRand{rolls: []int{499}})
			d.HandleQueue("s1")
			d.HandleQueue("s2")
			tt.setup(d)

			d.HandleRoll(tt.roller, raw(tt.payload))
			assert.Equal(t, tt.expected, emitter.lastTextTo(internal.EventSystem, tt.roller))

			// 拒絕不產生任何結果事件
			assert.Empty(t, emitter.named(internal.EventResult))
		})
	}
}

// TestDeathroll_FullMatch 測試完整對局：上限嚴格遞減直到骰出 1
func TestDeathroll_FullMatch(t *testing.T) {
	// 腳本：第一擲 500，第二擲 1（IntN 回傳值 +1 為骰點）
	d, emitter := newDeathroll(&scriptRand{rolls: []int{499, 0}})

	d.HandleQueue("s1")
	d.HandleQueue("s2")
	d.HandleBet("s1", raw(`100`))
	d.HandleBet("s2", raw(`100`))
	emitter.reset()

	// PlayerA 擲出 500 → 輪到 PlayerB，上限變 500
	d.HandleRoll("s1", raw(`1000`))
	rollMsg, ok := emitter.last(internal.EventChat)
	require.True(t, ok)
	assert.Equal(t, "PlayerA rolled 500 (1–1000)", rollMsg.event.Data)

	// 不再是 PlayerA 的回合
	d.HandleRoll("s1", raw(`500`))
	assert.Equal(t, "Not your turn (or you're not in a match).", emitter.lastTextTo(internal.EventSystem, "s1"))

	// 舊上限被拒絕，通知點名新上限
	d.HandleRoll("s2", raw(`1000`))
	assert.Equal(t, "Invalid roll. You must /roll 500.", emitter.lastTextTo(internal.EventSystem, "s2"))

	// PlayerB 擲出 1 → 輸
	d.HandleRoll("s2", raw(`500`))

	result, ok := emitter.last(internal.EventResult)
	require.True(t, ok)
	payload, ok := result.event.Data.(internal.DeathrollResult)
	require.True(t, ok)
	assert.Equal(t, internal.SeatPlayerA, payload.Winner)
	assert.Equal(t, internal.SeatPlayerB, payload.Loser)
	assert.Equal(t, "100", payload.Bet)

	// 結束後擲骰不再改變狀態
	emitter.reset()
	d.HandleRoll("s2", raw(`500`))
	assert.Equal(t, "The match is over. You can keep chatting here.", emitter.lastTextTo(internal.EventSystem, "s2"))
	assert.Empty(t, emitter.named(internal.EventResult))
	assert.Empty(t, emitter.named(internal.EventChat))
}

// TestDeathroll_Chat 測試房間聊天
func TestDeathroll_Chat(t *testing.T) {
	d, emitter := newDeathroll(nil)

	d.HandleChat("s9", raw(`"hello"`))
	assert.Equal(t, "You are not in a match.", emitter.lastTextTo(internal.EventSystem, "s9"))

	d.HandleQueue("s1")
	d.HandleQueue("s2")
	emitter.reset()

	d.HandleChat("s2", raw(`"  gl hf  "`))
	msg, ok := emitter.last(internal.EventChat)
	require.True(t, ok)
	assert.Equal(t, "PlayerB: gl hf", msg.event.Data)
	assert.ElementsMatch(t, []string{"s1", "s2"}, msg.to)

	// 空白消息直接忽略
	emitter.reset()
	d.HandleChat("s1", raw(`"   "`))
	assert.Empty(t, emitter.named(internal.EventChat))
}

// TestDeathroll_DisconnectDuringPairing 測試斷線與配對交錯
//
// 把斷線釘在配對（出列 + 綁定）完成之後、通知送出之前的窗口：
// 斷線方必須被完整清理（解除綁定、標記離開），倖存方離開後
// 房間必須回收，不留永久綁定的死會話。
func TestDeathroll_DisconnectDuringPairing(t *testing.T) {
	emitter := newGatedEmitter(func(sessionID string, event internal.Event) bool {
		text, _ := event.Data.(string)
		return sessionID == "s2" && text == "Queued. Waiting for opponent..."
	})
	d := internal.NewDeathroll(emitter, internal.NewRand(), 1000, testLogger())

	d.HandleQueue("s1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.HandleQueue("s2")
	}()

	// 配對已完成、s2 的通知被攔在門上
	<-emitter.entered

	d.HandleDisconnect("s1")
	_, bound := d.RoomOf("s1")
	assert.False(t, bound, "disconnected session must not stay bound")

	close(emitter.release)
	<-done

	// 倖存方仍在房間裡，離開後房間回收
	_, bound = d.RoomOf("s2")
	require.True(t, bound)
	d.HandleDisconnect("s2")
	assert.Equal(t, 0, d.Stats()["rooms"])
}

// TestDeathroll_Disconnect 測試斷線清理與冪等性
func TestDeathroll_Disconnect(t *testing.T) {
	t.Run("disconnect while queued", func(t *testing.T) {
		d, _ := newDeathroll(nil)

		d.HandleQueue("s1")
		d.HandleDisconnect("s1")

		// s1 不再參與配對
		d.HandleQueue("s2")
		d.HandleQueue("s3")

		_, ok := d.RoomOf("s1")
		assert.False(t, ok)
		room2, ok := d.RoomOf("s2")
		require.True(t, ok)
		room3, _ := d.RoomOf("s3")
		assert.Equal(t, room2, room3)
	})

	t.Run("disconnect mid match declares no winner", func(t *testing.T) {
		d, emitter := newDeathroll(nil)

		d.HandleQueue("s1")
		d.HandleQueue("s2")
		emitter.reset()

		d.HandleDisconnect("s1")

		departure, ok := emitter.last(internal.EventSystem)
		require.True(t, ok)
		assert.Equal(t, "PlayerA leaves the instance.", departure.event.Data)
		assert.Equal(t, []string{"s2"}, departure.to)
		assert.Empty(t, emitter.named(internal.EventResult))

		_, ok = d.RoomOf("s1")
		assert.False(t, ok)
		_, ok = d.RoomOf("s2")
		assert.True(t, ok)

		// 冪等：重複斷線不再廣播
		d.HandleDisconnect("s1")
		assert.Len(t, emitter.named(internal.EventSystem), 1)

		// 房間保留到最後一人離開
		assert.Equal(t, 1, d.Stats()["rooms"])
		d.HandleDisconnect("s2")
		assert.Equal(t, 0, d.Stats()["rooms"])
	})
}
