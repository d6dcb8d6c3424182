package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeDirection_ReversalUsesBufferedDirection(t *testing.T) {
	m := newTestManager(t)
	r, ids, _ := startRoom(t, m, 2)
	id := ids[0]

	require.True(t, m.ChangeDirection(id, DirRight))
	assert.False(t, m.ChangeDirection(id, DirLeft), "reversal of buffered direction")
	require.True(t, m.ChangeDirection(id, DirUp))
	// 同一 Tick 内先上后左是合法的，不会形成掉头
	require.True(t, m.ChangeDirection(id, DirLeft))

	r.mu.Lock()
	got := r.player(id).buffered
	r.mu.Unlock()
	assert.Equal(t, DirLeft, got)
}

func TestChangeDirection_LastWriteWins(t *testing.T) {
	m := newTestManager(t)
	r, ids, _ := startRoom(t, m, 2)
	place(r, ids[0], Position{5, 5})
	place(r, ids[1], Position{14, 14})
	setFood(r, Position{0, 19})

	m.ChangeDirection(ids[0], DirUp)
	m.ChangeDirection(ids[0], DirRight)
	r.runTick()

	game := snapshot(r)
	assert.Equal(t, []Position{{6, 5}}, game.Players[0].Snake)
	assert.Equal(t, DirRight, game.Players[0].Direction)
}

func TestChangeDirection_Ignored(t *testing.T) {
	t.Run("not in a room", func(t *testing.T) {
		m := newTestManager(t)
		id, _ := connect(m)
		assert.False(t, m.ChangeDirection(id, DirUp))
	})

	t.Run("room waiting", func(t *testing.T) {
		m := newTestManager(t)
		_, ids, _ := setupRoom(t, m, 2)
		assert.False(t, m.ChangeDirection(ids[0], DirUp))
	})

	t.Run("player eliminated", func(t *testing.T) {
		m := newTestManager(t)
		r, ids, _ := startRoom(t, m, 4)
		place(r, ids[0], Position{4, 5})
		place(r, ids[1], Position{6, 5})
		setFood(r, Position{0, 19})
		m.ChangeDirection(ids[0], DirRight)
		m.ChangeDirection(ids[1], DirLeft)
		require.False(t, r.runTick())

		assert.False(t, m.ChangeDirection(ids[0], DirUp))
		assert.True(t, m.ChangeDirection(ids[2], DirUp))
	})

	t.Run("invalid vector", func(t *testing.T) {
		m := newTestManager(t)
		_, ids, _ := startRoom(t, m, 2)
		assert.False(t, m.ChangeDirection(ids[0], Direction{X: 1, Y: 1}))
		assert.False(t, m.ChangeDirection(ids[0], DirNone))
	})
}

func TestChangeDirection_Metrics(t *testing.T) {
	m := newTestManager(t)
	_, ids, _ := startRoom(t, m, 2)
	m.ChangeDirection(ids[0], DirRight)
	m.ChangeDirection(ids[0], DirLeft)
	assert.EqualValues(t, 1, m.Metrics().DirectionsAccepted)
	assert.EqualValues(t, 1, m.Metrics().DirectionsIgnored)
}

func TestParseDirection(t *testing.T) {
	testCases := []struct {
		raw  string
		want Direction
		ok   bool
	}{
		{`{"direction":{"x":1,"y":0}}`, DirRight, true},
		{`{"direction":{"x":0,"y":-1}}`, DirUp, true},
		{`{"direction":{"x":-1.0,"y":0}}`, DirLeft, true},
		{`{"direction":{"x":0,"y":0}}`, DirNone, false},
		{`{"direction":{"x":1,"y":1}}`, DirNone, false},
		{`{"direction":{"x":2,"y":0}}`, DirNone, false},
		{`{"direction":{"x":0.5,"y":0}}`, DirNone, false},
		{`{"direction":{"x":1e20,"y":0}}`, DirNone, false},
		{`{"direction":"up"}`, DirNone, false},
		{`{}`, DirNone, false},
		{`null`, DirNone, false},
		{``, DirNone, false},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := parseDirection(json.RawMessage(tc.raw))
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
