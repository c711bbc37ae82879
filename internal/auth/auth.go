package auth

import (
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"sudooom.pong/internal/jwt"
)

const (
	// CookieName 前端保存 Token 的 Cookie
	CookieName = "access_token"
	// QueryParam websocket 握手时通过查询参数携带 Token
	QueryParam = "token"
)

// Identity 请求方身份
type Identity struct {
	PlayerID string
	Username string
	Guest    bool
}

// Resolver 从请求中解析身份，Token 缺失或无效时生成访客身份
type Resolver struct {
	jwt    *jwt.Service
	intN   func(int) int
	logger *slog.Logger
}

// NewResolver 创建身份解析器，jwtService 为 nil 时所有请求都是访客
func NewResolver(jwtService *jwt.Service) *Resolver {
	return &Resolver{
		jwt:    jwtService,
		intN:   rand.IntN,
		logger: slog.Default().With("component", "AuthResolver"),
	}
}

// Resolve 解析请求身份
func (r *Resolver) Resolve(req *http.Request) Identity {
	if id, ok := r.Authenticate(req); ok {
		return id
	}
	return r.Guest()
}

// Authenticate 只校验 Token，不生成访客身份
func (r *Resolver) Authenticate(req *http.Request) (Identity, bool) {
	token := ExtractToken(req)
	if token == "" || r.jwt == nil {
		return Identity{}, false
	}

	claims, err := r.jwt.ValidateToken(token)
	if err != nil {
		r.logger.Warn("Rejected token, falling back to guest", "error", err)
		return Identity{}, false
	}

	id := Identity{PlayerID: string(claims.UserID), Username: claims.Username}
	if id.Username == "" {
		id.Username = "Player-" + id.PlayerID
	}
	return id, true
}

// Guest 生成访客身份 guest-NNNN / Guest-NNNN
func (r *Resolver) Guest() Identity {
	suffix := strconv.Itoa(1000 + r.intN(9000))
	return Identity{
		PlayerID: "guest-" + suffix,
		Username: "Guest-" + suffix,
		Guest:    true,
	}
}

// ExtractToken 依次从 Authorization 头、查询参数和 Cookie 中取 Token
func ExtractToken(req *http.Request) string {
	if token := bearerToken(req.Header.Get("Authorization")); token != "" {
		return token
	}
	if token := req.URL.Query().Get(QueryParam); token != "" {
		return token
	}
	if cookie, err := req.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// bearerToken 从 Authorization header 提取 token
func bearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
