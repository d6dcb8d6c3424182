package server

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts = 100
)

// Settings 可热更新的开局参数，对之后开始的游戏生效
type Settings struct {
	TickInterval time.Duration
	FoodScore    int
}

// session 一个传输连接对应的身份，同一时刻最多绑定一个房间
type session struct {
	id   PlayerID
	conn Outbox
	room *Room
}

// RoomManager 管理房间与会话绑定。
// mu 只保护两张索引表；房间内的变更由各自的房间锁互斥，不同房间互不阻塞。
type RoomManager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	reserved map[string]struct{} // 已分配但房间尚未公开的房间码
	sessions map[PlayerID]*session
	settings Settings

	board       Board
	maxPlayers  int
	finishedTTL time.Duration

	codeGen   func() string
	seed      func() int64
	newTicker TickerFunc

	metrics *Metrics
}

// Option 定制 RoomManager（主要用于测试注入）
type Option func(*RoomManager)

// WithCodeGenerator 替换房间码生成器
func WithCodeGenerator(gen func() string) Option {
	return func(m *RoomManager) { m.codeGen = gen }
}

// WithSeed 替换每个房间随机数的种子来源
func WithSeed(seed func() int64) Option {
	return func(m *RoomManager) { m.seed = seed }
}

// WithTicker 替换房间 Tick 时钟
func WithTicker(t TickerFunc) Option {
	return func(m *RoomManager) { m.newTicker = t }
}

// NewRoomManager 每个进程一个，显式传递，不使用全局单例
func NewRoomManager(cfg Config, opts ...Option) *RoomManager {
	var seq int64
	m := &RoomManager{
		rooms:    make(map[string]*Room),
		reserved: make(map[string]struct{}),
		sessions: make(map[PlayerID]*session),
		settings: Settings{
			TickInterval: cfg.TickInterval,
			FoodScore:    cfg.FoodScore,
		},
		board:       Board{Width: cfg.GridWidth, Height: cfg.GridHeight},
		maxPlayers:  cfg.MaxPlayers,
		finishedTTL: cfg.FinishedTTL,
		codeGen:     randomCode,
		seed: func() int64 {
			return time.Now().UnixNano() + atomic.AddInt64(&seq, 1)
		},
		newTicker: RealTicker,
		metrics:   &Metrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func randomCode() string {
	var b strings.Builder
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// Metrics 运行指标
func (m *RoomManager) Metrics() *Metrics { return m.metrics }

// Settings 当前开局参数
func (m *RoomManager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings 热更新开局参数
func (m *RoomManager) UpdateSettings(s Settings) error {
	if s.TickInterval < MinTickInterval || s.TickInterval > MaxTickInterval {
		return fmt.Errorf("tick interval %v outside [%v, %v]", s.TickInterval, MinTickInterval, MaxTickInterval)
	}
	if s.FoodScore <= 0 {
		return fmt.Errorf("food score must be positive, got %d", s.FoodScore)
	}
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	return nil
}

// Connect 为新连接分配会话身份
func (m *RoomManager) Connect(conn Outbox) PlayerID {
	id := PlayerID(uuid.NewString())
	m.mu.Lock()
	m.sessions[id] = &session{id: id, conn: conn}
	m.mu.Unlock()
	m.metrics.IncSessions(1)
	return id
}

func (m *RoomManager) session(id PlayerID) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrInternal)
	}
	return s, nil
}

func (m *RoomManager) bind(s *session, r *Room) {
	m.mu.Lock()
	s.room = r
	m.mu.Unlock()
}

func (m *RoomManager) boundRoom(s *session) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return s.room
}

// Room 按房间码查找
func (m *RoomManager) Room(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[strings.ToUpper(strings.TrimSpace(code))]
	return r, ok
}

// Rooms 所有活跃房间的概要，按房间码排序
func (m *RoomManager) Rooms() []RoomSummary {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// CreateRoom 生成未被占用的房间码，创建者成为房主
func (m *RoomManager) CreateRoom(id PlayerID, name string) (string, PlayerID, error) {
	s, err := m.session(id)
	if err != nil {
		return "", "", err
	}

	// 先占住房间码，确认能创建后才离开原房间
	code, err := m.reserveCode()
	if err != nil {
		return "", "", err
	}
	if prev := m.boundRoom(s); prev != nil {
		_ = m.leave(s, prev)
	}

	r := newRoom(roomParams{
		code:       code,
		board:      m.board,
		maxPlayers: m.maxPlayers,
		rng:        rand.New(rand.NewSource(m.seed())),
		newTicker:  m.newTicker,
		metrics:    m.metrics,
		onFinished: m.scheduleDispose,
	})
	m.mu.Lock()
	delete(m.reserved, code)
	m.rooms[code] = r
	// 房间先加锁再公开给其他会话，保证房主先于任何加入者
	r.mu.Lock()
	s.room = r
	m.mu.Unlock()

	p, err := r.join(id, name, s.conn)
	if err != nil {
		r.mu.Unlock()
		m.bind(s, nil)
		m.dispose(r)
		return "", "", err
	}
	if s.conn != nil {
		s.conn.Enqueue(encode(EventRoomCreated, RoomCreated{RoomCode: code, PlayerID: string(id)}))
	}
	r.publishRoomState()
	r.mu.Unlock()

	m.metrics.IncRoomsCreated()
	Log.Infow("room created", "room", code, "host", id, "name", p.Name)
	return code, id, nil
}

func (m *RoomManager) reserveCode() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < codeAttempts; i++ {
		c := m.codeGen()
		_, taken := m.rooms[c]
		_, pending := m.reserved[c]
		if !taken && !pending {
			m.reserved[c] = struct{}{}
			return c, nil
		}
	}
	return "", fmt.Errorf("room code space exhausted: %w", ErrInternal)
}

// JoinRoom 仅 waiting 状态可加入；成功后向全房间（含加入者）广播 room_state。
// 已在其他房间时，只有确认能加入新房间才会离开原房间。
func (m *RoomManager) JoinRoom(id PlayerID, code, name string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	r, ok := m.Room(code)
	if !ok {
		return ErrRoomNotFound
	}
	prev := m.boundRoom(s)
	if prev == r {
		prev = nil
	}

	unlock := lockRooms(r, prev)
	if err := r.canJoin(id); err != nil {
		unlock()
		return err
	}
	var prevEmpty bool
	if prev != nil {
		prevEmpty, err = prev.detach(id)
		if err != nil {
			// 绑定与房间成员不一致时只解除旧绑定
			Log.Warnw("stale room binding", "room", prev.Code, "player", id, "error", err)
		}
	}
	p, err := r.join(id, name, s.conn)
	if err != nil {
		unlock()
		return err
	}
	r.publishRoomState()
	unlock()

	m.bind(s, r)
	if prev != nil {
		Log.Infow("player left", "room", prev.Code, "player", id)
		if prevEmpty {
			m.dispose(prev)
		}
	}
	Log.Infow("player joined", "room", r.Code, "player", id, "name", p.Name, "color", p.Color)
	return nil
}

// lockRooms 按固定顺序锁住一到两个房间，返回解锁函数
func lockRooms(a, b *Room) func() {
	if b == nil {
		a.mu.Lock()
		return a.mu.Unlock
	}
	if b.Code < a.Code || (b.Code == a.Code && b.createdAt.Before(a.createdAt)) {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}

// SetReady 切换准备状态
func (m *RoomManager) SetReady(id PlayerID) error {
	r, err := m.roomOf(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.toggleReady(id); err != nil {
		return err
	}
	r.publishRoomState()
	return nil
}

// StartGame 房主开局：进入 playing、重置蛇身、投放食物、挂上 Ticker
func (m *RoomManager) StartGame(id PlayerID) error {
	r, err := m.roomOf(id)
	if err != nil {
		return err
	}
	settings := m.Settings()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.canStart(id); err != nil {
		return err
	}
	r.start(settings.TickInterval, settings.FoodScore)
	r.publishRoomState()
	r.publishGameUpdate()

	m.metrics.IncGamesStarted()
	Log.Infow("game started", "room", r.Code, "players", len(r.players), "tick", settings.TickInterval)
	return nil
}

// LeaveRoom 主动离开
func (m *RoomManager) LeaveRoom(id PlayerID) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	r := m.boundRoom(s)
	if r == nil {
		return ErrNotInRoom
	}
	return m.leave(s, r)
}

// HandleDisconnect 传输层断开：效果与离开相同，随后注销会话
func (m *RoomManager) HandleDisconnect(id PlayerID) {
	s, err := m.session(id)
	if err != nil {
		return
	}
	if r := m.boundRoom(s); r != nil {
		_ = m.leave(s, r)
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.metrics.IncSessions(-1)
	Log.Debugw("session closed", "player", id)
}

func (m *RoomManager) leave(s *session, r *Room) error {
	r.mu.Lock()
	empty, err := r.detach(s.id)
	r.mu.Unlock()

	m.mu.Lock()
	if s.room == r {
		s.room = nil
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	Log.Infow("player left", "room", r.Code, "player", s.id)
	if empty {
		m.dispose(r)
	}
	return nil
}

func (m *RoomManager) roomOf(id PlayerID) (*Room, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	r := m.boundRoom(s)
	if r == nil {
		return nil, ErrNotInRoom
	}
	return r, nil
}

// scheduleDispose 房间结束后保留一段时间供客户端展示结果；持房间锁时调用
func (m *RoomManager) scheduleDispose(r *Room) {
	time.AfterFunc(m.finishedTTL, func() { m.dispose(r) })
}

// dispose 从索引中移除房间并解绑剩余会话；可重复调用
func (m *RoomManager) dispose(r *Room) {
	m.mu.Lock()
	cur, ok := m.rooms[r.Code]
	if !ok || cur != r {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, r.Code)
	m.mu.Unlock()

	ids := r.close()

	m.mu.Lock()
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok && s.room == r {
			s.room = nil
		}
	}
	m.mu.Unlock()

	m.metrics.IncRoomsDisposed()
	Log.Infow("room disposed", "room", r.Code)
}

// Close 停止所有房间并关闭仍在线的连接（进程退出时调用）
func (m *RoomManager) Close() {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	conns := make([]Outbox, 0, len(m.sessions))
	for _, s := range m.sessions {
		conns = append(conns, s.conn)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		m.dispose(r)
	}
	for _, c := range conns {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
