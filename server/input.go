package server

import (
	"encoding/json"
	"fmt"
)

// 客户端 → 服务端事件名
const (
	EventCreateRoom      = "create_room"
	EventJoinRoom        = "join_room"
	EventPlayerReady     = "player_ready"
	EventStartGame       = "start_game"
	EventChangeDirection = "change_direction"
	EventLeaveRoom       = "leave_room"
)

// ClientMessage 入站消息信封（WebSocket 文本消息）
// 示例：{"event":"change_direction","data":{"direction":{"x":1,"y":0}}}
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type createRoomPayload struct {
	Name string `json:"name,omitempty"`
}

type joinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name,omitempty"`
}

type changeDirectionPayload struct {
	Direction *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"direction"`
}

// decodePayload 允许 data 缺省或为 null
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, ErrBadRequest)
	}
	return nil
}

// parseDirection 只接受四个单位方向，其余（含越界、小数）一律视为无效
func parseDirection(raw json.RawMessage) (Direction, bool) {
	var p changeDirectionPayload
	if err := decodePayload(raw, &p); err != nil || p.Direction == nil {
		return DirNone, false
	}
	x, y := p.Direction.X, p.Direction.Y
	if x < -1 || x > 1 || y < -1 || y > 1 || x != float64(int(x)) || y != float64(int(y)) {
		return DirNone, false
	}
	d := Direction{X: int(x), Y: int(y)}
	return d, d.Valid()
}
