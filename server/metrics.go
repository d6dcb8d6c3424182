package server

import (
	"sync/atomic"
)

// Metrics 记录服务运行期的关键指标（用于监控与调试）
type Metrics struct {
	Sessions           int64 // 当前在线连接数
	RoomsCreated       int64
	RoomsDisposed      int64
	GamesStarted       int64
	GamesFinished      int64
	TickCount          int64 // 所有房间累计 Tick 次数
	TotalTickNs        int64 // Tick 累计耗时（纳秒）
	TickFaults         int64 // Tick 内部异常次数
	DirectionsAccepted int64
	DirectionsIgnored  int64 // 因出局/非游戏中/掉头被忽略
	BroadcastsDropped  int64 // 因发送队列满被丢弃
	ErrorsSent         int64
	RateLimited        int64
}

func (m *Metrics) IncSessions(delta int64) { atomic.AddInt64(&m.Sessions, delta) }
func (m *Metrics) IncRoomsCreated() { atomic.AddInt64(&m.RoomsCreated, 1) }
func (m *Metrics) IncRoomsDisposed() { atomic.AddInt64(&m.RoomsDisposed, 1) }
func (m *Metrics) IncGamesStarted() { atomic.AddInt64(&m.GamesStarted, 1) }
func (m *Metrics) IncGamesFinished() { atomic.AddInt64(&m.GamesFinished, 1) }
func (m *Metrics) IncTickFaults() { atomic.AddInt64(&m.TickFaults, 1) }
func (m *Metrics) IncDirectionAccepted() { atomic.AddInt64(&m.DirectionsAccepted, 1) }
func (m *Metrics) IncDirectionIgnored() { atomic.AddInt64(&m.DirectionsIgnored, 1) }
func (m *Metrics) IncBroadcastDropped() { atomic.AddInt64(&m.BroadcastsDropped, 1) }
func (m *Metrics) IncErrorsSent() { atomic.AddInt64(&m.ErrorsSent, 1) }
func (m *Metrics) IncRateLimited() { atomic.AddInt64(&m.RateLimited, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"sessions":            atomic.LoadInt64(&m.Sessions),
		"rooms_created":       atomic.LoadInt64(&m.RoomsCreated),
		"rooms_disposed":      atomic.LoadInt64(&m.RoomsDisposed),
		"games_started":       atomic.LoadInt64(&m.GamesStarted),
		"games_finished":      atomic.LoadInt64(&m.GamesFinished),
		"tick_count":          tick,
		"tick_faults":         atomic.LoadInt64(&m.TickFaults),
		"avg_tick_ms":         avgMs,
		"directions_accepted": atomic.LoadInt64(&m.DirectionsAccepted),
		"directions_ignored":  atomic.LoadInt64(&m.DirectionsIgnored),
		"broadcasts_dropped":  atomic.LoadInt64(&m.BroadcastsDropped),
		"errors_sent":         atomic.LoadInt64(&m.ErrorsSent),
		"rate_limited":        atomic.LoadInt64(&m.RateLimited),
	}
}
