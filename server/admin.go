package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// adminConfig 管理接口的配置视图；POST 时只更新给出的字段
type adminConfig struct {
	TickMs    *int `json:"tickMs,omitempty"`
	FoodScore *int `json:"foodScore,omitempty"`
}

// HandleAdminConfig 读取与热更新开局参数（对之后开始的游戏生效）
// GET /admin/config    返回当前配置
// POST /admin/config   以 JSON 载荷更新部分字段
func HandleAdminConfig(rm *RoomManager) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		cur := rm.Settings()
		switch ctx.Request.Method {
		case http.MethodGet:
			tickMs := int(cur.TickInterval / time.Millisecond)
			ctx.JSON(http.StatusOK, adminConfig{TickMs: &tickMs, FoodScore: &cur.FoodScore})
		case http.MethodPost:
			var body adminConfig
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
				return
			}
			if body.TickMs != nil {
				cur.TickInterval = time.Duration(*body.TickMs) * time.Millisecond
			}
			if body.FoodScore != nil {
				cur.FoodScore = *body.FoodScore
			}
			if err := rm.UpdateSettings(cur); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			Log.Infow("config updated", "tick", cur.TickInterval, "foodScore", cur.FoodScore)
			ctx.JSON(http.StatusOK, gin.H{"ok": true})
		default:
			ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		}
	}
}

// HandleMetrics 输出运行指标
// GET /metrics
func HandleMetrics(rm *RoomManager) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"rooms":   len(rm.Rooms()),
			"metrics": rm.Metrics().Snapshot(),
		})
	}
}

// HandleRooms 列出活跃房间
// GET /admin/rooms
func HandleRooms(rm *RoomManager) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"rooms": rm.Rooms()})
	}
}
