package handler

import (
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"sudooom.pong/internal/auth"
	appErrors "sudooom.pong/internal/errors"
	"sudooom.pong/internal/game"
	"sudooom.pong/internal/room"
	"sudooom.pong/internal/session"
	"sudooom.pong/pkg/response"
)

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// NormalizeRoomCode 去掉空白并转为大写，格式不合法返回 false
func NormalizeRoomCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	return code, roomCodePattern.MatchString(code)
}

// CreateRoomRequest 创建房间请求，请求体可省略
type CreateRoomRequest struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// JoinRoomRequest 加入房间请求
type JoinRoomRequest struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// RoomHandler 房间管理接口
type RoomHandler struct {
	registry *room.Registry
	resolver *auth.Resolver
	logger   *slog.Logger
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(registry *room.Registry, resolver *auth.Resolver) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		resolver: resolver,
		logger:   slog.Default().With("component", "RoomHandler"),
	}
}

// identity 请求方身份；访客可以在请求体中自带 player_id，username 总是覆盖
func (h *RoomHandler) identity(c *gin.Context, playerID, username string) auth.Identity {
	id := h.resolver.Resolve(c.Request)
	if id.Guest && playerID != "" {
		id.PlayerID = playerID
	}
	if username = strings.TrimSpace(username); username != "" {
		id.Username = username
	}
	return id
}

// bindOptional 解析可为空的 JSON 请求体
func bindOptional(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Create 创建房间，创建者成为 1 号玩家
// POST /api/room/create/
func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if err := bindOptional(c, &req); err != nil {
		response.ErrorFromAppError(c, appErrors.ErrInvalidParams.Wrap(err))
		return
	}

	ctx := c.Request.Context()
	id := h.identity(c, req.PlayerID, req.Username)

	code, err := h.registry.GenerateCode(ctx)
	if err != nil {
		h.logger.Error("Failed to generate room code", "error", err)
		response.ErrorFromAppError(c, appErrors.ErrServerError.Wrap(err))
		return
	}
	if _, _, err := h.registry.Create(ctx, code); err != nil {
		h.logger.Error("Failed to create room", "roomCode", code, "error", err)
		response.ErrorFromAppError(c, appErrors.ErrServerError.Wrap(err))
		return
	}

	var (
		slot int
		name string
	)
	state, err := h.registry.Update(ctx, code, func(s *game.State) error {
		slot, name = h.registry.Sessions().Assign(s, id.PlayerID, id.Username)
		return nil
	})
	if err != nil {
		response.ErrorFromAppError(c, appErrors.ErrServerError.Wrap(err))
		return
	}

	h.logger.Info("Room created via API", "roomCode", code, "playerId", id.PlayerID)
	response.Success(c, gin.H{
		"room_code":     code,
		"player_number": slot,
		"player_id":     id.PlayerID,
		"username":      name,
		"game_state":    state.Snapshot(),
	})
}

// Join 加入房间；已占有槽位的玩家视为重连
// POST /api/room/join/
func (h *RoomHandler) Join(c *gin.Context) {
	var req JoinRoomRequest
	if err := bindOptional(c, &req); err != nil {
		response.ErrorFromAppError(c, appErrors.ErrInvalidParams.Wrap(err))
		return
	}
	if strings.TrimSpace(req.RoomCode) == "" {
		response.ErrorFromAppError(c, appErrors.ErrRoomCodeRequired)
		return
	}
	code, ok := NormalizeRoomCode(req.RoomCode)
	if !ok {
		response.ErrorFromAppError(c, appErrors.ErrRoomNotFound)
		return
	}

	ctx := c.Request.Context()
	id := h.identity(c, req.PlayerID, req.Username)

	current, err := h.registry.Reload(ctx, code)
	if err != nil {
		response.ErrorFromAppError(c, appErrors.ErrRoomNotFound)
		return
	}
	if current.Status == game.StatusFinished {
		response.ErrorFromAppError(c, appErrors.ErrGameEnded)
		return
	}
	reconnecting := current.SlotOf(id.PlayerID) != 0
	if current.BothSlotsFilled() && !reconnecting {
		response.ErrorFromAppError(c, appErrors.ErrRoomFull)
		return
	}

	var (
		slot int
		name string
	)
	state, err := h.registry.Update(ctx, code, func(s *game.State) error {
		slot, name = h.registry.Sessions().Assign(s, id.PlayerID, id.Username)
		return nil
	})
	if errors.Is(err, room.ErrRoomNotFound) {
		response.ErrorFromAppError(c, appErrors.ErrRoomNotFound)
		return
	}
	if err != nil {
		response.ErrorFromAppError(c, appErrors.ErrServerError.Wrap(err))
		return
	}
	// 并发加入时槽位可能已被占满
	if slot == session.Spectator {
		response.ErrorFromAppError(c, appErrors.ErrRoomFull)
		return
	}

	response.Success(c, gin.H{
		"room_code":     code,
		"player_number": slot,
		"player_id":     id.PlayerID,
		"username":      name,
		"reconnecting":  reconnecting,
		"game_state":    state.Snapshot(),
	})
}

// Check 查询房间概况
// GET /api/room/check/:code/
func (h *RoomHandler) Check(c *gin.Context) {
	code, ok := NormalizeRoomCode(c.Param("code"))
	if !ok {
		response.ErrorFromAppError(c, appErrors.ErrRoomNotFound)
		return
	}

	state, err := h.registry.Reload(c.Request.Context(), code)
	if err != nil {
		response.ErrorFromAppError(c, appErrors.ErrRoomNotFound)
		return
	}

	snap := state.Snapshot()
	response.Success(c, gin.H{
		"room_code":       code,
		"status":          state.Status,
		"player_count":    state.PlayerCount(),
		"active_sessions": h.registry.Sessions().ConnectedCount(code),
		"player_1_id":     snap.Player1ID,
		"player_2_id":     snap.Player2ID,
		"is_paused":       state.IsPaused,
		"created_at":      state.CreatedAt,
	})
}

// Delete 创建者删除尚未开始的房间
// 已登录用户按 Token 识别，访客通过 player_id 查询参数声明身份
// DELETE /api/room/:code/
func (h *RoomHandler) Delete(c *gin.Context) {
	code, ok := NormalizeRoomCode(c.Param("code"))
	if !ok {
		response.ErrorFromAppError(c, appErrors.ErrRoomNotFound)
		return
	}

	playerID := c.Query("player_id")
	if id, ok := h.resolver.Authenticate(c.Request); ok {
		playerID = id.PlayerID
	}
	if playerID == "" {
		response.ErrorFromAppError(c, appErrors.ErrTokenInvalid)
		return
	}

	ctx := c.Request.Context()
	state, err := h.registry.Reload(ctx, code)
	if err != nil {
		response.ErrorFromAppError(c, appErrors.ErrRoomNotFound)
		return
	}
	if state.Player1ID != playerID {
		response.ErrorFromAppError(c, appErrors.ErrNotRoomCreator)
		return
	}
	if state.Status != game.StatusWaiting || state.Player2ID != "" {
		response.ErrorFromAppError(c, appErrors.ErrRoomStarted)
		return
	}

	h.registry.Delete(ctx, code)
	h.logger.Info("Room deleted via API", "roomCode", code, "playerId", playerID)
	response.Success(c, gin.H{"room_code": code})
}
