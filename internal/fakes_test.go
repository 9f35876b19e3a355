package internal_test

import (
	"slices"
	"sync"

	"github.com/koopa0/pvp-arena/internal"
)

// recordingEmitter 記錄所有出站事件的假 Emitter
//
// 測試直接檢視事件序列，不經過 WebSocket。
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

type emitted struct {
	to    []string // 遞送目標（單播時恰好一個）
	event internal.Event
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{}
}

func (e *recordingEmitter) Unicast(sessionID string, event internal.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{to: []string{sessionID}, event: event})
}

func (e *recordingEmitter) Broadcast(sessionIDs []string, event internal.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{to: slices.Clone(sessionIDs), event: event})
}

// all 獲取全部事件的快照
func (e *recordingEmitter) all() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

// named 獲取指定名稱的事件
func (e *recordingEmitter) named(name string) []emitted {
	var out []emitted
	for _, ev := range e.all() {
		if ev.event.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// last 獲取指定名稱的最後一個事件
func (e *recordingEmitter) last(name string) (emitted, bool) {
	events := e.named(name)
	if len(events) == 0 {
		return emitted{}, false
	}
	return events[len(events)-1], true
}

// textsTo 獲取遞送給某會話的指定名稱事件的文字負載
func (e *recordingEmitter) textsTo(name, sessionID string) []string {
	var out []string
	for _, ev := range e.named(name) {
		if !slices.Contains(ev.to, sessionID) {
			continue
		}
		if s, ok := ev.event.Data.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// lastTextTo 獲取遞送給某會話的最後一條文字負載
func (e *recordingEmitter) lastTextTo(name, sessionID string) string {
	texts := e.textsTo(name, sessionID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// reset 清空記錄
func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

// gatedEmitter 可在指定事件上暫停的 recordingEmitter
//
// trigger 命中時關閉 entered 並阻塞到 release 被關閉，
// 把併發交錯釘在事件送出前的那一刻。
type gatedEmitter struct {
	recordingEmitter
	trigger func(sessionID string, event internal.Event) bool
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedEmitter(trigger func(sessionID string, event internal.Event) bool) *gatedEmitter {
	return &gatedEmitter{
		trigger: trigger,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (e *gatedEmitter) Unicast(sessionID string, event internal.Event) {
	if e.trigger(sessionID, event) {
		e.once.Do(func() { close(e.entered) })
		<-e.release
	}
	e.recordingEmitter.Unicast(sessionID, event)
}

// scriptRand 腳本化的隨機來源
//
// IntN 依序回傳預設值（耗盡後回傳 0），Shuffle 執行注入的
// 置換函數（nil 則不洗牌，牌堆保持構建順序）。
type scriptRand struct {
	mu      sync.Mutex
	rolls   []int
	shuffle func(n int, swap func(i, j int))
}

func (r *scriptRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rolls) == 0 {
		return 0
	}
	v := r.rolls[0]
	r.rolls = r.rolls[1:]
	if v >= n {
		v = n - 1
	}
	return v
}

func (r *scriptRand) Shuffle(n int, swap func(i, j int)) {
	if r.shuffle != nil {
		r.shuffle(n, swap)
	}
}
