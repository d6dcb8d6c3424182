package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder 记录所有出站消息的 Outbox
type recorder struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (r *recorder) Enqueue(b []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, b)
	return true
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (r *recorder) envelopes(t *testing.T) []envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]envelope, 0, len(r.msgs))
	for _, b := range r.msgs {
		var e envelope
		require.NoError(t, json.Unmarshal(b, &e))
		out = append(out, e)
	}
	return out
}

func (r *recorder) events(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, e := range r.envelopes(t) {
		names = append(names, e.Event)
	}
	return names
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// last 解码最后一条指定事件的载荷
func (r *recorder) last(t *testing.T, event string, v any) {
	t.Helper()
	envs := r.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			require.NoError(t, json.Unmarshal(envs[i].Data, v))
			return
		}
	}
	require.Failf(t, "event not found", "no %q in %v", event, r.events(t))
}

// idleTicker 从不触发的时钟，测试里直接调用 runTick
func idleTicker(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

func sequentialCodes() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ROOM%02d", n)
	}
}

func newTestManager(t *testing.T, opts ...Option) *RoomManager {
	t.Helper()
	base := []Option{
		WithCodeGenerator(sequentialCodes()),
		WithSeed(func() int64 { return 42 }),
		WithTicker(idleTicker),
	}
	m := NewRoomManager(DefaultConfig(), append(base, opts...)...)
	t.Cleanup(m.Close)
	return m
}

func connect(m *RoomManager) (PlayerID, *recorder) {
	rec := &recorder{}
	return m.Connect(rec), rec
}

// setupRoom 创建房间并让 n-1 个玩家加入，返回房间与所有会话（第一个是房主）
func setupRoom(t *testing.T, m *RoomManager, n int) (*Room, []PlayerID, []*recorder) {
	t.Helper()
	host, hostRec := connect(m)
	code, _, err := m.CreateRoom(host, "")
	require.NoError(t, err)
	ids := []PlayerID{host}
	recs := []*recorder{hostRec}
	for i := 1; i < n; i++ {
		id, rec := connect(m)
		require.NoError(t, m.JoinRoom(id, code, ""))
		ids = append(ids, id)
		recs = append(recs, rec)
	}
	r, ok := m.Room(code)
	require.True(t, ok)
	return r, ids, recs
}

// startRoom 所有人准备后由房主开局
func startRoom(t *testing.T, m *RoomManager, n int) (*Room, []PlayerID, []*recorder) {
	t.Helper()
	r, ids, recs := setupRoom(t, m, n)
	for _, id := range ids[1:] {
		require.NoError(t, m.SetReady(id))
	}
	require.NoError(t, m.StartGame(ids[0]))
	return r, ids, recs
}

// place 在锁内直接摆放蛇身
func place(r *Room, id PlayerID, cells ...Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.player(id)
	p.Snake = append([]Position(nil), cells...)
}

func setFood(r *Room, pos Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.food = pos
}

func snapshot(r *Room) GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameState()
}
