package server

import (
	"runtime/debug"
	"time"
)

// TickerFunc 创建周期时钟，返回时钟通道与释放函数；测试中可替换为手动时钟
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// RealTicker 基于 time.Ticker 的默认实现
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// startTicker 启动房间的 Tick 循环；调用方持锁
func (r *Room) startTicker() {
	if r.stop != nil {
		return
	}
	stop := make(chan struct{})
	r.stop = stop
	newTicker := r.newTicker
	if newTicker == nil {
		newTicker = RealTicker
	}
	c, release := newTicker(r.tickInterval)
	go r.tickLoop(c, release, stop)
}

// stopTicker 取消 Ticker，只会生效一次；调用方持锁
func (r *Room) stopTicker() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	r.stop = nil
}

func (r *Room) tickLoop(c <-chan time.Time, release func(), stop <-chan struct{}) {
	defer release()
	for {
		select {
		case <-stop:
			return
		case <-c:
			// 核心循环：读取缓冲方向 → 推进世界 → 广播结果
			if done := r.runTick(); done {
				return
			}
		}
	}
}

// runTick 执行一次完整的权威推进；返回 true 表示不再需要后续 Tick。
// 推进与广播在同一把锁内完成，对观察者而言是原子的。
func (r *Room) runTick() (done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPlaying || r.disposed {
		return true
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			// 不重试：损坏的模拟状态重放只会更糟，直接结束房间
			Log.Errorw("tick fault, finishing room", "room", r.Code, "tick", r.tickSeq, "panic", rec, "stack", string(debug.Stack()))
			if r.metrics != nil {
				r.metrics.IncTickFaults()
			}
			r.finish()
			done = true
		}
	}()

	res := r.board.Step(r.players, r.food, r.foodScore, r.rng)
	r.food = res.Food
	r.tickSeq++
	for _, p := range res.Died {
		Log.Debugw("player eliminated", "room", r.Code, "player", p.ID, "tick", r.tickSeq, "score", p.Score)
	}

	if aliveCount(r.players) <= 1 {
		r.finish()
		done = true
	} else {
		r.publishGameUpdate()
	}

	if r.metrics != nil {
		r.metrics.AddTick(time.Since(start).Nanoseconds())
	}
	return done
}
