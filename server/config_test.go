package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(fakeEnv(map[string]string{
		"SNAKE_ADDR":            ":9000",
		"SNAKE_GRID_WIDTH":      "30",
		"SNAKE_TICK_MS":         "200",
		"SNAKE_MAX_PLAYERS":     "4",
		"SNAKE_FINISHED_TTL":    "5s",
		"SNAKE_ALLOWED_ORIGINS": "http://localhost:3000, https://snake.example.com",
		"SNAKE_EVENT_RATE":      "2.5",
		"SNAKE_LOG_CONSOLE":     "true",
		"SNAKE_LOG_LEVEL":       "",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 30, cfg.GridWidth)
	assert.Equal(t, 20, cfg.GridHeight)
	assert.Equal(t, 200*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 4, cfg.MaxPlayers)
	assert.Equal(t, 5*time.Second, cfg.FinishedTTL)
	assert.Equal(t, []string{"http://localhost:3000", "https://snake.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 2.5, cfg.EventRate)
	assert.True(t, cfg.Log.Console)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv_ParseErrors(t *testing.T) {
	testCases := []struct {
		key, value string
	}{
		{"SNAKE_GRID_HEIGHT", "tall"},
		{"SNAKE_TICK_MS", "fast"},
		{"SNAKE_FINISHED_TTL", "60"},
		{"SNAKE_EVENT_RATE", "many"},
		{"SNAKE_LOG_CONSOLE", "sometimes"},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.applyEnv(fakeEnv(map[string]string{tc.key: tc.value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"tiny grid", func(c *Config) { c.GridWidth = 4 }, false},
		{"tick too fast", func(c *Config) { c.TickInterval = 100 * time.Millisecond }, false},
		{"tick too slow", func(c *Config) { c.TickInterval = 250 * time.Millisecond }, false},
		{"tick upper bound", func(c *Config) { c.TickInterval = MaxTickInterval }, true},
		{"one player", func(c *Config) { c.MaxPlayers = 1 }, false},
		{"more players than colors", func(c *Config) { c.MaxPlayers = 9 }, false},
		{"zero food score", func(c *Config) { c.FoodScore = 0 }, false},
		{"negative ttl", func(c *Config) { c.FinishedTTL = -time.Second }, false},
		{"zero rate", func(c *Config) { c.EventRate = 0 }, false},
		{"no origins", func(c *Config) { c.AllowedOrigins = nil }, false},
		{"bare host origin", func(c *Config) { c.AllowedOrigins = []string{"localhost:3000"} }, false},
		{"explicit origins", func(c *Config) { c.AllowedOrigins = []string{"http://localhost:3000"} }, true},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SNAKE_ADDR", ":7000")
	t.Setenv("SNAKE_FOOD_SCORE", "3")

	cfg, err := LoadConfig([]string{"-addr", ":7100", "-tick", "180ms"})
	require.NoError(t, err)

	assert.Equal(t, ":7100", cfg.Addr)
	assert.Equal(t, 3, cfg.FoodScore)
	assert.Equal(t, 180*time.Millisecond, cfg.TickInterval)
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	_, err := LoadConfig([]string{"-max-players", "12"})
	assert.Error(t, err)
}
