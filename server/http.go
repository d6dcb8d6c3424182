package server

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter 组装 HTTP 路由：/ws 为游戏事件通道，其余为健康检查与管理接口
func NewRouter(rm *RoomManager, cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Origin",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}
	if slices.Contains(cfg.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	r.GET("/ws", HandleWS(rm, cfg))
	r.GET("/metrics", HandleMetrics(rm))

	admin := r.Group("/admin")
	{
		admin.GET("/config", HandleAdminConfig(rm))
		admin.POST("/config", HandleAdminConfig(rm))
		admin.GET("/rooms", HandleRooms(rm))
	}
	return r
}
