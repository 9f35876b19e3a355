package internal_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/koopa0/pvp-arena/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStress_ConcurrentMatchmaking 測試高併發排隊下的配對不變量
//
// 不變量：每個會話恰好落在一個房間，每個房間恰好兩個成員，
// 佇列最終清空。
func TestStress_ConcurrentMatchmaking(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	d, _ := newDeathroll(nil)

	const numSessions = 200

	var wg sync.WaitGroup
	for i := 0; i < numSessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.HandleQueue(fmt.Sprintf("s%d", id))
		}(i)
	}
	wg.Wait()

	// 每個會話綁定到恰好一個房間
	members := make(map[string][]string)
	for i := 0; i < numSessions; i++ {
		sessionID := fmt.Sprintf("s%d", i)
		roomID, ok := d.RoomOf(sessionID)
		require.True(t, ok, "session %s was never paired", sessionID)
		members[roomID] = append(members[roomID], sessionID)
	}

	// 每個房間恰好兩個成員
	assert.Len(t, members, numSessions/2)
	for roomID, sessions := range members {
		assert.Len(t, sessions, 2, "room %s has wrong member count", roomID)
	}

	stats := d.Stats()
	assert.Equal(t, 0, stats["waiting"])
	assert.Equal(t, numSessions/2, stats["rooms"])
}

// TestStress_ConcurrentPlayAndDisconnect 測試遊玩與斷線交錯時的狀態一致性
//
// 每個房間一個玩家狂發事件、另一個玩家斷線，結束後再全部斷線。
// 不變量：不 panic、不死鎖，所有房間最終回收。
func TestStress_ConcurrentPlayAndDisconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	d, _ := newDeathroll(nil)
	b, _ := newBlackjack(nil)

	const numPairs = 50

	// 先順序配對，讓座位可預測
	for i := 0; i < numPairs*2; i++ {
		sessionID := fmt.Sprintf("s%d", i)
		d.HandleQueue(sessionID)
		b.HandleQueue(sessionID)
	}
	require.Equal(t, numPairs, d.Stats()["rooms"])
	require.Equal(t, numPairs, b.Stats()["rooms"])

	var wg sync.WaitGroup
	for i := 0; i < numPairs; i++ {
		stayer := fmt.Sprintf("s%d", i*2)
		leaver := fmt.Sprintf("s%d", i*2+1)

		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				d.HandleBet(stayer, raw(`100`))
				d.HandleChat(stayer, raw(`"spam"`))
				d.HandleRoll(stayer, raw(`1000`))
				b.HandleBet(stayer, raw(`50`))
				b.HandleDeal(stayer)
				b.HandleHit(stayer)
			}
		}()
		go func() {
			defer wg.Done()
			// 重複斷線驗證冪等
			d.HandleDisconnect(leaver)
			b.HandleDisconnect(leaver)
			d.HandleDisconnect(leaver)
			b.HandleDisconnect(leaver)
		}()
	}
	wg.Wait()

	// 留下的一方仍綁定，離開的一方已解除
	for i := 0; i < numPairs; i++ {
		_, ok := d.RoomOf(fmt.Sprintf("s%d", i*2))
		assert.True(t, ok)
		_, ok = d.RoomOf(fmt.Sprintf("s%d", i*2+1))
		assert.False(t, ok)
	}

	// 全部離開後房間歸零
	var cleanup sync.WaitGroup
	for i := 0; i < numPairs*2; i++ {
		cleanup.Add(1)
		go func(id int) {
			defer cleanup.Done()
			sessionID := fmt.Sprintf("s%d", id)
			d.HandleDisconnect(sessionID)
			b.HandleDisconnect(sessionID)
		}(i)
	}
	cleanup.Wait()

	assert.Equal(t, 0, d.Stats()["rooms"])
	assert.Equal(t, 0, b.Stats()["rooms"])
	assert.Equal(t, 0, d.Stats()["waiting"])
	assert.Equal(t, 0, b.Stats()["waiting"])
}

// TestStress_DispatcherFanout 測試調度器在併發混合流量下的穩定性
func TestStress_DispatcherFanout(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過壓力測試")
	}

	dispatcher, _ := newDispatcher()

	const numSessions = 100

	events := []internal.InboundEvent{
		{Name: internal.EventQueue},
		{Name: internal.EventBet, Data: raw(`100`)},
		{Name: internal.EventRoll, Data: raw(`1000`)},
		{Name: internal.EventChat, Data: raw(`"hi"`)},
		{Name: internal.EventBJQueue},
		{Name: internal.EventBJBet, Data: raw(`50`)},
		{Name: internal.EventBJDeal},
		{Name: internal.EventBJHit},
		{Name: internal.EventBJStand},
		{Name: internal.EventBJChat, Data: raw(`"gg"`)},
		{Name: "bogus", Data: raw(`{}`)},
	}

	var wg sync.WaitGroup
	for i := 0; i < numSessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", id)
			for _, ev := range events {
				dispatcher.Dispatch(sessionID, ev)
			}
			dispatcher.Disconnect(sessionID)
		}(i)
	}
	wg.Wait()
}
