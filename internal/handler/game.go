package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sudooom.pong/internal/auth"
	"sudooom.pong/internal/connection"
	appErrors "sudooom.pong/internal/errors"
	"sudooom.pong/internal/match"
	"sudooom.pong/internal/middleware"
	"sudooom.pong/pkg/response"
)

// GameHandler 对局 websocket 入口
type GameHandler struct {
	engine   *match.Engine
	resolver *auth.Resolver
	upgrader websocket.Upgrader
	connOpts connection.Options
	logger   *slog.Logger
}

// NewGameHandler 创建 websocket 处理器
// 浏览器请求按 allowedOrigins 校验 Origin，不带 Origin 的终端客户端直接放行
func NewGameHandler(engine *match.Engine, resolver *auth.Resolver, allowedOrigins []string, connOpts connection.Options) *GameHandler {
	return &GameHandler{
		engine:   engine,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
		connOpts: connOpts,
		logger:   slog.Default().With("component", "GameHandler"),
	}
}

// Serve 升级为 websocket 并交给对局引擎，直到连接断开才返回
// GET /ws/game/:code/
func (h *GameHandler) Serve(c *gin.Context) {
	code, ok := NormalizeRoomCode(c.Param("code"))
	if !ok {
		response.ErrorFromAppError(c, appErrors.ErrRoomCodeRequired)
		return
	}

	id := h.resolver.Resolve(c.Request)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "roomCode", code, "error", err)
		return
	}

	conn := connection.New(ws, h.connOpts)
	h.engine.Serve(context.WithoutCancel(c.Request.Context()), conn, code, id)
}
