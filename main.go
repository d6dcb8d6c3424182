package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"snakearena/server"
)

// 入口：启动 HTTP + WebSocket 服务，并初始化房间管理器
func main() {
	cfg, err := server.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	gin.SetMode(gin.ReleaseMode)
	rm := server.NewRoomManager(cfg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(rm, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		server.Log.Infof("snake arena listening on %s (grid %dx%d, tick %v)", cfg.Addr, cfg.GridWidth, cfg.GridHeight, cfg.TickInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		server.Log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rm.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		server.Log.Errorf("server stopped: %v", err)
	}
}
