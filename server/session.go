package server

// ChangeDirection 缓冲玩家的下一步方向，在下一个 Tick 边界生效。
// 玩家已出局、房间不在 playing、或请求与当前缓冲方向正好相反时静默忽略；
// 同一 Tick 内多次请求以最后一次为准。
func (m *RoomManager) ChangeDirection(id PlayerID, d Direction) bool {
	r, err := m.roomOf(id)
	if err != nil {
		m.metrics.IncDirectionIgnored()
		return false
	}
	r.mu.Lock()
	ok := r.bufferDirection(id, d)
	r.mu.Unlock()

	if ok {
		m.metrics.IncDirectionAccepted()
	} else {
		m.metrics.IncDirectionIgnored()
	}
	return ok
}

// bufferDirection 调用方持锁
func (r *Room) bufferDirection(id PlayerID, d Direction) bool {
	if !d.Valid() || r.status != StatusPlaying {
		return false
	}
	p := r.player(id)
	if p == nil || !p.Alive {
		return false
	}
	// 与最近一次缓冲的方向比较，而不是棋盘上的方向，防止一个 Tick 内连按两次掉头
	if d == p.buffered.Opposite() {
		return false
	}
	p.buffered = d
	return true
}
