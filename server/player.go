package server

import (
	"fmt"
	"strings"
)

// PlayerID 连接级身份（每个 WebSocket 连接一个），重连后不保持
type PlayerID string

// Position 棋盘上的格子坐标
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Direction 移动向量：四个单位方向之一，或零向量（尚未移动）
type Direction struct {
	X int `json:"x"`
	Y int `json:"y"`
}

var (
	DirNone  = Direction{}
	DirUp    = Direction{X: 0, Y: -1}
	DirDown  = Direction{X: 0, Y: 1}
	DirLeft  = Direction{X: -1, Y: 0}
	DirRight = Direction{X: 1, Y: 0}
)

// IsZero 是否为零向量
func (d Direction) IsZero() bool { return d == DirNone }

// Valid 是否为四个单位方向之一
func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}

// Opposite 反方向
func (d Direction) Opposite() Direction { return Direction{X: -d.X, Y: -d.Y} }

// Player 房间内的玩家实体（服务端权威状态）
type Player struct {
	ID        PlayerID
	Name      string
	Snake     []Position // 头在前，非空
	Direction Direction  // 上一个 Tick 实际生效的方向
	Alive     bool
	Score     int
	Color     int
	IsReady   bool
	IsHost    bool

	buffered Direction // 下一个 Tick 生效的方向（最后写入者获胜）
	left     bool      // 游戏中途离开：保留蛇身用于渲染，但不再属于房间成员

	Conn Outbox // 网络连接的发送端（写协程）
}

// PlayerState 为广播给客户端的玩家状态
type PlayerState struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Snake     []Position `json:"snake"`
	Direction Direction  `json:"direction"`
	Alive     bool       `json:"alive"`
	Score     int        `json:"score"`
	Color     int        `json:"color"`
	IsReady   bool       `json:"isReady"`
	IsHost    bool       `json:"isHost"`
}

func (p *Player) state() PlayerState {
	snake := make([]Position, len(p.Snake))
	copy(snake, p.Snake)
	return PlayerState{
		ID:        string(p.ID),
		Name:      p.Name,
		Snake:     snake,
		Direction: p.Direction,
		Alive:     p.Alive,
		Score:     p.Score,
		Color:     p.Color,
		IsReady:   p.IsReady,
		IsHost:    p.IsHost,
	}
}

// Head 蛇头
func (p *Player) Head() Position { return p.Snake[0] }

// reset 回到开局状态
func (p *Player) reset(spawn Position) {
	p.Snake = []Position{spawn}
	p.Direction = DirNone
	p.buffered = DirNone
	p.Alive = true
	p.Score = 0
}

const maxNameLen = 20

func playerName(requested string, joinIndex int) string {
	name := []rune(strings.TrimSpace(requested))
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	if len(name) == 0 {
		return fmt.Sprintf("Player %d", joinIndex+1)
	}
	return string(name)
}

// spawnPoint 每个颜色对应一个固定、互不重叠的出生点
func spawnPoint(color, width, height int) Position {
	qx, qy := width/4, height/4
	table := [PaletteSize]Position{
		{qx, qy},
		{width - 1 - qx, height - 1 - qy},
		{width - 1 - qx, qy},
		{qx, height - 1 - qy},
		{width / 2, qy},
		{width / 2, height - 1 - qy},
		{qx, height / 2},
		{width - 1 - qx, height / 2},
	}
	return table[color%PaletteSize]
}
