package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "sudooom.pong/internal/errors"
)

// Success 成功响应，data 的字段与 success 平铺在同一层
func Success(c *gin.Context, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Error 错误响应
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

// ErrorFromAppError 从 AppError 生成错误响应，HTTP 状态码按错误码映射
func ErrorFromAppError(c *gin.Context, err error) {
	Error(c, StatusOf(err), appErrors.GetMessage(err))
}

// StatusOf 错误码对应的 HTTP 状态码
func StatusOf(err error) int {
	switch appErrors.GetCode(err) {
	case appErrors.CodeRoomNotFound:
		return http.StatusNotFound
	case appErrors.CodeTokenInvalid, appErrors.CodeTokenExpired:
		return http.StatusUnauthorized
	case appErrors.CodeNotRoomCreator:
		return http.StatusForbidden
	case appErrors.CodeRoomStarted:
		return http.StatusConflict
	case appErrors.CodeServerError, appErrors.CodeStoreUnavailable:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
