package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "sudooom.pong/internal/errors"
	"sudooom.pong/internal/history"
	"sudooom.pong/pkg/response"
)

const maxHistoryLimit = 100

// HistoryHandler 对局记录查询
type HistoryHandler struct {
	recorder history.Recorder
	logger   *slog.Logger
}

// NewHistoryHandler 创建对局记录处理器
func NewHistoryHandler(recorder history.Recorder) *HistoryHandler {
	return &HistoryHandler{
		recorder: recorder,
		logger:   slog.Default().With("component", "HistoryHandler"),
	}
}

// List 玩家最近的对局
// GET /api/history/:player_id/?limit=20
func (h *HistoryHandler) List(c *gin.Context) {
	playerID := c.Param("player_id")
	if playerID == "" {
		response.ErrorFromAppError(c, appErrors.ErrInvalidParams)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.ErrorFromAppError(c, appErrors.ErrInvalidParams)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	results, err := h.recorder.ListByPlayer(c.Request.Context(), playerID, limit)
	if err != nil {
		h.logger.Error("Failed to list match history", "playerId", playerID, "error", err)
		response.ErrorFromAppError(c, appErrors.ErrServerError.Wrap(err))
		return
	}
	if results == nil {
		results = []history.Result{}
	}

	response.Success(c, gin.H{
		"player_id": playerID,
		"matches":   results,
	})
}
