package server

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// MinTickInterval / MaxTickInterval 权威 Tick 的允许范围
	MinTickInterval = 150 * time.Millisecond
	MaxTickInterval = 200 * time.Millisecond

	// PaletteSize 客户端固定的 8 色调色板
	PaletteSize = 8
)

// Config 服务进程配置：flag > 环境变量 > .env > 默认值
type Config struct {
	Addr           string
	GridWidth      int
	GridHeight     int
	TickInterval   time.Duration
	MaxPlayers     int
	FoodScore      int
	FinishedTTL    time.Duration
	AllowedOrigins []string
	EventRate      float64
	EventBurst     int
	Log            LogConfig
}

// DefaultConfig 与客户端 20x20 棋盘、单人 5 分吃食保持一致
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		GridWidth:      20,
		GridHeight:     20,
		TickInterval:   150 * time.Millisecond,
		MaxPlayers:     8,
		FoodScore:      5,
		FinishedTTL:    60 * time.Second,
		AllowedOrigins: []string{"*"},
		EventRate:      10,
		EventBurst:     20,
		Log: LogConfig{
			File:  "app.log",
			Level: "debug",
		},
	}
}

// LoadConfig 解析命令行参数；未显式给出的参数回落到环境变量（可来自 .env）
func LoadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	origins := strings.Join(cfg.AllowedOrigins, ",")

	fs := flag.NewFlagSet("snakearena", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :8080")
	fs.IntVar(&cfg.GridWidth, "grid-width", cfg.GridWidth, "board width in cells")
	fs.IntVar(&cfg.GridHeight, "grid-height", cfg.GridHeight, "board height in cells")
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "authoritative tick interval (150ms-200ms)")
	fs.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "players per room (2-8)")
	fs.IntVar(&cfg.FoodScore, "food-score", cfg.FoodScore, "score per food")
	fs.DurationVar(&cfg.FinishedTTL, "finished-ttl", cfg.FinishedTTL, "how long a finished room is kept")
	fs.StringVar(&origins, "allowed-origins", origins, "comma separated allowed origins, * for any")
	fs.Float64Var(&cfg.EventRate, "event-rate", cfg.EventRate, "room events per second per connection")
	fs.IntVar(&cfg.EventBurst, "event-burst", cfg.EventBurst, "room event burst per connection")
	fs.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "log file path")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	fs.BoolVar(&cfg.Log.Console, "log-console", cfg.Log.Console, "also log to stderr")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.AllowedOrigins = splitList(origins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = d
		}
	}

	str("SNAKE_ADDR", &c.Addr)
	num("SNAKE_GRID_WIDTH", &c.GridWidth)
	num("SNAKE_GRID_HEIGHT", &c.GridHeight)
	num("SNAKE_MAX_PLAYERS", &c.MaxPlayers)
	num("SNAKE_FOOD_SCORE", &c.FoodScore)
	num("SNAKE_EVENT_BURST", &c.EventBurst)
	dur("SNAKE_FINISHED_TTL", &c.FinishedTTL)
	str("SNAKE_LOG_FILE", &c.Log.File)
	str("SNAKE_LOG_LEVEL", &c.Log.Level)

	// 毫秒整数
	var tickMs int
	num("SNAKE_TICK_MS", &tickMs)
	if tickMs > 0 {
		c.TickInterval = time.Duration(tickMs) * time.Millisecond
	}
	if v, ok := lookup("SNAKE_ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("SNAKE_EVENT_RATE"); ok && v != "" && err == nil {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			err = fmt.Errorf("SNAKE_EVENT_RATE: %w", perr)
		} else {
			c.EventRate = f
		}
	}
	if v, ok := lookup("SNAKE_LOG_CONSOLE"); ok && v != "" && err == nil {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("SNAKE_LOG_CONSOLE: %w", perr)
		} else {
			c.Log.Console = b
		}
	}
	return err
}

// Validate 检查取值范围
func (c Config) Validate() error {
	switch {
	case c.GridWidth < 5 || c.GridHeight < 5:
		return fmt.Errorf("grid must be at least 5x5, got %dx%d", c.GridWidth, c.GridHeight)
	case c.TickInterval < MinTickInterval || c.TickInterval > MaxTickInterval:
		return fmt.Errorf("tick interval %v outside [%v, %v]", c.TickInterval, MinTickInterval, MaxTickInterval)
	case c.MaxPlayers < 2 || c.MaxPlayers > PaletteSize:
		return fmt.Errorf("max players must be within [2, %d], got %d", PaletteSize, c.MaxPlayers)
	case c.FoodScore <= 0:
		return fmt.Errorf("food score must be positive, got %d", c.FoodScore)
	case c.FinishedTTL < 0:
		return fmt.Errorf("finished ttl must not be negative")
	case c.EventRate <= 0 || c.EventBurst <= 0:
		return fmt.Errorf("event rate and burst must be positive")
	case len(c.AllowedOrigins) == 0:
		return fmt.Errorf("at least one allowed origin is required")
	}
	for _, o := range c.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("allowed origin %q must be * or start with http:// or https://", o)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
