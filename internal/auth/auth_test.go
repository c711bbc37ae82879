package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.pong/internal/jwt"
)

func newRequest(t *testing.T, token string, where string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ws/game/ABC123/", nil)
	switch where {
	case "header":
		req.Header.Set("Authorization", "Bearer "+token)
	case "query":
		q := req.URL.Query()
		q.Set(QueryParam, token)
		req.URL.RawQuery = q.Encode()
	case "cookie":
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}
	return req
}

func TestResolve_TokenSources(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	token, err := svc.GenerateToken("42", "alice")
	require.NoError(t, err)

	r := NewResolver(svc)
	for _, where := range []string{"header", "query", "cookie"} {
		t.Run(where, func(t *testing.T) {
			id := r.Resolve(newRequest(t, token, where))
			assert.Equal(t, Identity{PlayerID: "42", Username: "alice"}, id)
		})
	}
}

func TestResolve_GuestFallback(t *testing.T) {
	r := NewResolver(jwt.NewService("secret", time.Hour))
	r.intN = func(int) int { return 234 }

	id := r.Resolve(newRequest(t, "garbage", "header"))
	assert.Equal(t, Identity{PlayerID: "guest-1234", Username: "Guest-1234", Guest: true}, id)

	id = r.Resolve(newRequest(t, "", "none"))
	assert.True(t, id.Guest)
}

func TestResolve_NoJWTService(t *testing.T) {
	token, _ := jwt.NewService("secret", time.Hour).GenerateToken("42", "alice")
	id := NewResolver(nil).Resolve(newRequest(t, token, "header"))
	assert.True(t, id.Guest)
}

func TestResolve_MissingUsername(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	token, _ := svc.GenerateToken("42", "")
	id, ok := NewResolver(svc).Authenticate(newRequest(t, token, "header"))
	require.True(t, ok)
	assert.Equal(t, "Player-42", id.Username)
}

func TestGuest_Range(t *testing.T) {
	r := NewResolver(nil)
	for i := 0; i < 100; i++ {
		id := r.Guest()
		assert.Regexp(t, `^guest-[1-9][0-9]{3}$`, id.PlayerID)
		assert.Equal(t, "G"+id.PlayerID[1:], id.Username)
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken(""))
}
