package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
	readLimit  = 1 << 16
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃（防止阻塞 Tick），下一帧快照会覆盖
		return false
	}
}

// Close 关闭发送队列，写协程随后关闭底层连接；可重复调用
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				Log.Debugw("ws write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端事件并分发；退出即视为断线
func (c *ClientConn) readPump(rm *RoomManager, id PlayerID, limiter *rate.Limiter) {
	defer rm.HandleDisconnect(id)
	defer c.Close()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("ws read failed", "player", id, "error", err)
			}
			return
		}
		if err := dispatch(rm, id, limiter, payload); err != nil {
			c.replyError(rm, id, err)
		}
	}
}

// replyError 失败只单播给请求方，不影响房间其他成员
func (c *ClientConn) replyError(rm *RoomManager, id PlayerID, err error) {
	if ErrorCode(err) == "internal-error" {
		Log.Errorw("event failed", "player", id, "error", err)
	} else {
		Log.Debugw("event rejected", "player", id, "error", err)
	}
	rm.metrics.IncErrorsSent()
	c.Enqueue(errorMessage(err))
}

// dispatch 解码一帧文本消息并路由；无法解析的信封回复 bad-request
func dispatch(rm *RoomManager, id PlayerID, limiter *rate.Limiter, payload []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode envelope: %v: %w", err, ErrBadRequest)
	}
	if err := handleEvent(rm, id, limiter, msg); err != nil {
		return fmt.Errorf("%s: %w", msg.Event, err)
	}
	return nil
}

// handleEvent 将一个入站事件路由到 RoomManager
func handleEvent(rm *RoomManager, id PlayerID, limiter *rate.Limiter, msg ClientMessage) error {
	// 方向输入不限流：除了显式的过滤规则外不丢弃任何请求
	if msg.Event == EventChangeDirection {
		if d, ok := parseDirection(msg.Data); ok {
			rm.ChangeDirection(id, d)
		}
		return nil
	}
	if limiter != nil && !limiter.Allow() {
		rm.metrics.IncRateLimited()
		return ErrRateLimited
	}

	switch msg.Event {
	case EventCreateRoom:
		var p createRoomPayload
		if err := decodePayload(msg.Data, &p); err != nil {
			return err
		}
		_, _, err := rm.CreateRoom(id, p.Name)
		return err
	case EventJoinRoom:
		var p joinRoomPayload
		if err := decodePayload(msg.Data, &p); err != nil {
			return err
		}
		return rm.JoinRoom(id, p.RoomCode, p.Name)
	case EventPlayerReady:
		return rm.SetReady(id)
	case EventStartGame:
		return rm.StartGame(id)
	case EventLeaveRoom:
		return rm.LeaveRoom(id)
	default:
		return ErrBadRequest
	}
}

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if slices.Contains(allowed, "*") {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, origin)
		},
	}
}

// HandleWS WebSocket 接入：每个连接分配一个会话身份，房间由后续事件决定
func HandleWS(rm *RoomManager, cfg Config) gin.HandlerFunc {
	upgrader := newUpgrader(cfg.AllowedOrigins)
	return func(ctx *gin.Context) {
		ws, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			Log.Debugw("upgrade error", "ip", ctx.ClientIP(), "error", err)
			return
		}

		client := NewClientConn(ws)
		id := rm.Connect(client)
		limiter := rate.NewLimiter(rate.Limit(cfg.EventRate), cfg.EventBurst)
		Log.Debugw("session opened", "player", id, "ip", ctx.ClientIP())

		go client.writePump()
		go client.readPump(rm, id, limiter)
	}
}
