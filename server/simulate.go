package server

import "math/rand"

// Board 环形棋盘：越过一侧边界从另一侧出现
type Board struct {
	Width  int
	Height int
}

func (b Board) wrap(p Position) Position {
	return Position{
		X: ((p.X % b.Width) + b.Width) % b.Width,
		Y: ((p.Y % b.Height) + b.Height) % b.Height,
	}
}

// next 头部沿方向前进一格后的位置
func (b Board) next(head Position, d Direction) Position {
	return b.wrap(Position{X: head.X + d.X, Y: head.Y + d.Y})
}

// StepResult 一次推进的结果，供日志与指标使用
type StepResult struct {
	Eater *Player   // 本 Tick 吃到食物的玩家，可能为 nil
	Died  []*Player // 本 Tick 死亡的玩家（按加入顺序）
	Food  Position  // 推进后的食物位置
}

type move struct {
	p     *Player
	next  Position
	grows bool
	dies  bool
}

// Step 基于 Tick 开始时的一致快照推进一次：
// 所有判定只读取推进前的蛇身与存活状态，结果与遍历顺序无关。
// players 按加入顺序排列，同时落在食物上时最早加入者获得食物。
func (b Board) Step(players []*Player, food Position, foodScore int, rng *rand.Rand) StepResult {
	res := StepResult{Food: food}

	moves := make([]move, 0, len(players))
	for _, p := range players {
		if !p.Alive {
			continue
		}
		p.Direction = p.buffered
		if p.Direction.IsZero() {
			continue
		}
		moves = append(moves, move{p: p, next: b.next(p.Head(), p.Direction)})
	}

	eater := -1
	for i := range moves {
		if moves[i].next == food {
			moves[i].grows = true
			eater = i
			break
		}
	}

	for i := range moves {
		m := &moves[i]
		if hitsSelf(m.p.Snake, m.next, m.grows) || hitsOther(players, m.p, m.next) {
			m.dies = true
		}
		// 头对头：落在同一格的双方都出局
		for j := i + 1; j < len(moves); j++ {
			if moves[j].next == m.next {
				m.dies = true
				moves[j].dies = true
			}
		}
	}

	for i := range moves {
		m := &moves[i]
		if m.dies {
			// 保留死前的蛇身用于渲染
			m.p.Alive = false
			res.Died = append(res.Died, m.p)
			continue
		}
		body := m.p.Snake
		if !m.grows {
			body = body[:len(body)-1]
		}
		snake := make([]Position, 0, len(body)+1)
		snake = append(snake, m.next)
		m.p.Snake = append(snake, body...)
	}

	if eater >= 0 && !moves[eater].dies {
		p := moves[eater].p
		p.Score += foodScore
		res.Eater = p
		if pos, ok := b.placeFood(players, rng); ok {
			res.Food = pos
		} else {
			Log.Warnw("no free cell for food", "width", b.Width, "height", b.Height)
		}
	}
	return res
}

// hitsSelf 新头是否落在自身（按生长/缩尾后的形状）非头部分
func hitsSelf(snake []Position, head Position, grows bool) bool {
	body := snake
	if !grows {
		body = snake[:len(snake)-1]
	}
	for _, s := range body {
		if s == head {
			return true
		}
	}
	return false
}

// hitsOther 新头是否落在其他存活玩家推进前的任意一节（含头）
func hitsOther(players []*Player, self *Player, head Position) bool {
	for _, o := range players {
		if o == self || !o.Alive {
			continue
		}
		for _, s := range o.Snake {
			if s == head {
				return true
			}
		}
	}
	return false
}

const foodRandomTries = 64

// placeFood 在所有蛇身（含已死亡玩家）之外均匀随机选一格
func (b Board) placeFood(players []*Player, rng *rand.Rand) (Position, bool) {
	occupied := make(map[Position]struct{})
	for _, p := range players {
		for _, s := range p.Snake {
			occupied[s] = struct{}{}
		}
	}
	for i := 0; i < foodRandomTries; i++ {
		c := Position{X: rng.Intn(b.Width), Y: rng.Intn(b.Height)}
		if _, ok := occupied[c]; !ok {
			return c, true
		}
	}
	// 棋盘很满时改为枚举空格
	free := make([]Position, 0, b.Width*b.Height-len(occupied))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			c := Position{X: x, Y: y}
			if _, ok := occupied[c]; !ok {
				free = append(free, c)
			}
		}
	}
	if len(free) == 0 {
		return Position{}, false
	}
	return free[rng.Intn(len(free))], true
}

func aliveCount(players []*Player) int {
	n := 0
	for _, p := range players {
		if p.Alive {
			n++
		}
	}
	return n
}
