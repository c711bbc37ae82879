package router

import (
	"github.com/gin-gonic/gin"

	"sudooom.pong/internal/config"
	"sudooom.pong/internal/handler"
	"sudooom.pong/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	roomHandler *handler.RoomHandler,
	historyHandler *handler.HistoryHandler,
	gameHandler *handler.GameHandler,
) *gin.Engine {
	gin.SetMode(cfg.App.Mode)

	r := gin.New()
	r.RedirectTrailingSlash = true

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))

	api := r.Group("/api")
	{
		rooms := api.Group("/room")
		{
			rooms.POST("/create/", roomHandler.Create)
			rooms.POST("/join/", roomHandler.Join)
			rooms.GET("/check/:code/", roomHandler.Check)
			rooms.DELETE("/:code/", roomHandler.Delete)
		}

		if historyHandler != nil {
			api.GET("/history/:player_id/", historyHandler.List)
		}
	}

	r.GET("/ws/game/:code/", gameHandler.Serve)

	return r
}
