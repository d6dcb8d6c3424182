package server

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// RoomStatus 房间状态：waiting → playing → finished
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

// Room 房间世界：权威状态维护在内存，所有变更在 mu 下互斥执行
type Room struct {
	Code string

	mu      sync.Mutex
	status  RoomStatus
	hostID  PlayerID
	players []*Player // 加入顺序
	food    Position

	board        Board
	maxPlayers   int
	foodScore    int
	tickInterval time.Duration
	rng          *rand.Rand
	newTicker    TickerFunc

	tickSeq    int64
	stop       chan struct{} // 非 nil 表示挂着 Ticker（仅 playing）
	disposed   bool
	createdAt  time.Time
	finishedAt time.Time

	metrics    *Metrics
	onFinished func(*Room) // 进入 finished 时回调（持锁调用，不得再取房间锁）
}

type roomParams struct {
	code       string
	board      Board
	maxPlayers int
	rng        *rand.Rand
	newTicker  TickerFunc
	metrics    *Metrics
	onFinished func(*Room)
}

func newRoom(p roomParams) *Room {
	return &Room{
		Code:       p.code,
		status:     StatusWaiting,
		players:    make([]*Player, 0, p.maxPlayers),
		board:      p.board,
		maxPlayers: p.maxPlayers,
		rng:        p.rng,
		newTicker:  p.newTicker,
		metrics:    p.metrics,
		onFinished: p.onFinished,
		createdAt:  time.Now(),
	}
}

// Status 当前状态
func (r *Room) Status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Room) player(id PlayerID) *Player {
	for _, p := range r.players {
		if p.ID == id && !p.left {
			return p
		}
	}
	return nil
}

func (r *Room) members() int {
	n := 0
	for _, p := range r.players {
		if !p.left {
			n++
		}
	}
	return n
}

// nextColor 默认取当前人数；若该颜色仍被占用（有人离开过），取最小空闲色
func (r *Room) nextColor() int {
	used := make(map[int]bool, len(r.players))
	for _, p := range r.players {
		used[p.Color] = true
	}
	if c := len(r.players); !used[c] {
		return c
	}
	for c := 0; c < PaletteSize; c++ {
		if !used[c] {
			return c
		}
	}
	return len(r.players) % PaletteSize
}

// canJoin 只做检查，不改动房间；调用方持锁
func (r *Room) canJoin(id PlayerID) error {
	if r.disposed {
		return ErrRoomNotFound
	}
	if r.player(id) != nil {
		return nil
	}
	if r.status != StatusWaiting {
		return fmt.Errorf("join room %s (%s): %w", r.Code, r.status, ErrInvalidState)
	}
	if len(r.players) >= r.maxPlayers {
		return ErrRoomFull
	}
	return nil
}

// join 在 waiting 状态下追加玩家；调用方持锁
func (r *Room) join(id PlayerID, name string, conn Outbox) (*Player, error) {
	if err := r.canJoin(id); err != nil {
		return nil, err
	}
	if p := r.player(id); p != nil {
		// 重复加入同一房间：视为成功，仅刷新连接
		p.Conn = conn
		return p, nil
	}

	color := r.nextColor()
	p := &Player{
		ID:    id,
		Name:  playerName(name, len(r.players)),
		Color: color,
		Conn:  conn,
	}
	p.reset(spawnPoint(color, r.board.Width, r.board.Height))
	if len(r.players) == 0 {
		p.IsHost = true
		p.IsReady = true
		r.hostID = id
	}
	r.players = append(r.players, p)
	return p, nil
}

// toggleReady 切换准备状态；房主始终视为已准备
func (r *Room) toggleReady(id PlayerID) error {
	p := r.player(id)
	if p == nil {
		return ErrNotInRoom
	}
	if r.status != StatusWaiting {
		return fmt.Errorf("ready in room %s (%s): %w", r.Code, r.status, ErrInvalidState)
	}
	if p.IsHost {
		return nil
	}
	p.IsReady = !p.IsReady
	return nil
}

// canStart 校验开局条件，失败时房间状态不变
func (r *Room) canStart(id PlayerID) error {
	p := r.player(id)
	if p == nil {
		return ErrNotInRoom
	}
	if id != r.hostID {
		return ErrNotHost
	}
	if r.status != StatusWaiting {
		return fmt.Errorf("start room %s (%s): %w", r.Code, r.status, ErrInvalidState)
	}
	if len(r.players) < 2 {
		return ErrNotEnoughPlayers
	}
	for _, other := range r.players {
		if !other.IsHost && !other.IsReady {
			return ErrPlayersNotReady
		}
	}
	return nil
}

// start 进入 playing：重置所有蛇、投放食物、挂上 Ticker；调用方持锁
func (r *Room) start(tick time.Duration, foodScore int) {
	for _, p := range r.players {
		p.reset(spawnPoint(p.Color, r.board.Width, r.board.Height))
	}
	r.tickInterval = tick
	r.foodScore = foodScore
	r.tickSeq = 0
	if pos, ok := r.board.placeFood(r.players, r.rng); ok {
		r.food = pos
	}
	r.status = StatusPlaying
	r.startTicker()
}

// remove 玩家离开或断线；返回房间是否已无成员。调用方持锁
func (r *Room) remove(id PlayerID) (empty bool, err error) {
	p := r.player(id)
	if p == nil {
		return false, ErrNotInRoom
	}

	if r.status == StatusWaiting {
		for i, q := range r.players {
			if q == p {
				r.players = append(r.players[:i], r.players[i+1:]...)
				break
			}
		}
	} else {
		// 游戏中途离开等同出局：保留蛇身，避免打乱其他协作者引用的下标。
		// finished 之后不再改动存活标记，终局快照保持不变。
		p.left = true
		if r.status == StatusPlaying {
			p.Alive = false
		}
	}
	p.Conn = nil

	if p.IsHost {
		p.IsHost = false
		r.hostID = ""
		for _, q := range r.players {
			if !q.left {
				q.IsHost = true
				q.IsReady = true
				r.hostID = q.ID
				break
			}
		}
	}

	if r.members() == 0 {
		if r.status == StatusPlaying {
			r.status = StatusFinished
			r.finishedAt = time.Now()
			r.stopTicker()
		}
		return true, nil
	}
	return false, nil
}

// detach 移除玩家并向剩余成员广播 room_state；game_update 只由 Tick 发出。调用方持锁
func (r *Room) detach(id PlayerID) (empty bool, err error) {
	empty, err = r.remove(id)
	if err == nil && !empty {
		r.publishRoomState()
	}
	return empty, err
}

// finish 进入 finished：取消 Ticker 并发出终局快照，二者在同一把锁内完成
func (r *Room) finish() {
	if r.status != StatusPlaying {
		return
	}
	r.status = StatusFinished
	r.finishedAt = time.Now()
	r.stopTicker()
	r.publishGameUpdate()
	r.publishRoomState()

	var winner string
	for _, p := range r.players {
		if p.Alive {
			winner = p.Name
		}
	}
	Log.Infow("game finished", "room", r.Code, "ticks", r.tickSeq, "winner", winner)
	if r.metrics != nil {
		r.metrics.IncGamesFinished()
	}
	if r.onFinished != nil {
		r.onFinished(r)
	}
}

// close 销毁房间，返回仍绑定在房间内的玩家
func (r *Room) close() []PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
	r.stopTicker()
	ids := make([]PlayerID, 0, len(r.players))
	for _, p := range r.players {
		if !p.left {
			ids = append(ids, p.ID)
		}
		p.Conn = nil
	}
	return ids
}

// RoomSummary 管理接口使用的房间概要
type RoomSummary struct {
	Code    string     `json:"code"`
	Status  RoomStatus `json:"status"`
	Players int        `json:"players"`
	HostID  string     `json:"hostId"`
	Tick    int64      `json:"tick"`
	Created time.Time  `json:"createdAt"`
}

func (r *Room) summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSummary{
		Code:    r.Code,
		Status:  r.status,
		Players: r.members(),
		HostID:  string(r.hostID),
		Tick:    r.tickSeq,
		Created: r.createdAt,
	}
}
