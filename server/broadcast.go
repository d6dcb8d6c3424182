package server

import "encoding/json"

// 服务端 → 客户端事件名
const (
	EventRoomCreated = "room_created"
	EventRoomState   = "room_state"
	EventGameUpdate  = "game_update"
	EventError       = "error"
)

// Outbox 连接的发送端；Enqueue 非阻塞，队列满时丢弃并返回 false
type Outbox interface {
	Enqueue(b []byte) bool
}

// ServerMessage 出站消息信封：{"event":"room_state","data":{...}}
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RoomState room_state 载荷
type RoomState struct {
	RoomCode string        `json:"roomCode"`
	Players  []PlayerState `json:"players"`
	HostID   string        `json:"hostId"`
	Status   RoomStatus    `json:"status"`
}

// GameState game_update 载荷
type GameState struct {
	Players []PlayerState `json:"players"`
	Food    Position      `json:"food"`
	Status  RoomStatus    `json:"status"`
	Tick    int64         `json:"tick"`
}

// RoomCreated room_created 载荷
type RoomCreated struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// ErrorPayload error 载荷，只单播给请求方
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func encode(event string, data any) []byte {
	b, err := json.Marshal(ServerMessage{Event: event, Data: data})
	if err != nil {
		// 载荷都是本包内的普通结构体，理论上不会失败
		Log.Errorw("encode message", "event", event, "error", err)
		return nil
	}
	return b
}

func errorMessage(err error) []byte {
	pub := publicError(err)
	return encode(EventError, ErrorPayload{Message: pub.Error(), Code: ErrorCode(pub)})
}

func (r *Room) playerStates() []PlayerState {
	states := make([]PlayerState, 0, len(r.players))
	for _, p := range r.players {
		states = append(states, p.state())
	}
	return states
}

func (r *Room) roomState() RoomState {
	return RoomState{
		RoomCode: r.Code,
		Players:  r.playerStates(),
		HostID:   string(r.hostID),
		Status:   r.status,
	}
}

func (r *Room) gameState() GameState {
	return GameState{
		Players: r.playerStates(),
		Food:    r.food,
		Status:  r.status,
		Tick:    r.tickSeq,
	}
}

// publishRoomState 成员或状态变化后广播完整房间快照；调用方持锁
func (r *Room) publishRoomState() {
	r.broadcast(encode(EventRoomState, r.roomState()))
}

// publishGameUpdate 每个 Tick 广播一次世界快照；调用方持锁
func (r *Room) publishGameUpdate() {
	r.broadcast(encode(EventGameUpdate, r.gameState()))
}

// broadcast 投递给房间内所有仍在线的连接；不积压，慢连接直接丢帧
func (r *Room) broadcast(b []byte) {
	if b == nil {
		return
	}
	for _, p := range r.players {
		if p.Conn == nil {
			continue
		}
		if !p.Conn.Enqueue(b) && r.metrics != nil {
			r.metrics.IncBroadcastDropped()
		}
	}
}
