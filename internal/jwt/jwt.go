package jwt

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// UserID 用户 ID，兼容签发方写入数字或字符串
type UserID string

// UnmarshalJSON 接受 "42" 与 42 两种写法
func (u *UserID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*u = UserID(n.String())
	return nil
}

// Claims JWT 声明
type Claims struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Service JWT 服务，只做 HS256 签发与校验
type Service struct {
	secretKey []byte
	expire    time.Duration
}

// NewService 创建 JWT 服务
func NewService(secretKey string, expire time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		expire:    expire,
	}
}

// Enabled 是否配置了密钥
func (s *Service) Enabled() bool {
	return len(s.secretKey) > 0
}

// GenerateToken 签发 Token（用于测试和运维工具）
func (s *Service) GenerateToken(userID, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   UserID(userID),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "pong",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken 验证 Token
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrTokenInvalid
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
