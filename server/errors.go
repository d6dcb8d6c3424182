package server

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrInvalidState     = errors.New("action not allowed in current room status")
	ErrNotHost          = errors.New("only the host can do that")
	ErrNotEnoughPlayers = errors.New("at least 2 players are required")
	ErrPlayersNotReady  = errors.New("all players must be ready")
	ErrNotInRoom        = errors.New("not in a room")
	ErrInternal         = errors.New("internal error")
)

// 传输层错误
var (
	ErrRateLimited = errors.New("too many requests")
	ErrBadRequest  = errors.New("bad request")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, "room-not-found"},
	{ErrRoomFull, "room-full"},
	{ErrInvalidState, "invalid-state"},
	{ErrNotHost, "not-host"},
	{ErrNotEnoughPlayers, "not-enough-players"},
	{ErrPlayersNotReady, "players-not-ready"},
	{ErrNotInRoom, "not-in-room"},
	{ErrInternal, "internal-error"},
	{ErrRateLimited, "rate-limited"},
	{ErrBadRequest, "bad-request"},
}

// ErrorCode 返回错误对应的稳定错误码；未知错误归为 internal-error
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal-error"
}

// publicError 返回可以展示给客户端的错误；未知错误不外泄细节
func publicError(err error) error {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.err
		}
	}
	return ErrInternal
}
