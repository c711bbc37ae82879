package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	token, err := service.GenerateToken("42", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := service.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.UserID != "42" {
		t.Errorf("Expected UserID 42, got %s", claims.UserID)
	}
	if claims.Username != "alice" {
		t.Errorf("Expected Username alice, got %s", claims.Username)
	}
}

func TestValidate_NumericUserID(t *testing.T) {
	secret := []byte("test-secret-key")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  7,
		"username": "bob",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	claims, err := NewService(string(secret), time.Hour).ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.UserID != "7" {
		t.Errorf("Expected UserID 7, got %s", claims.UserID)
	}
}

func TestValidate_Invalid(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	if _, err := service.ValidateToken("invalid-token"); err != ErrTokenInvalid {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	service := NewService("test-secret-key", -time.Hour) // 已过期

	token, err := service.GenerateToken("42", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := service.ValidateToken(token); err != ErrTokenExpired {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestValidate_WrongSecretKey(t *testing.T) {
	token, err := NewService("secret-key-1", time.Hour).GenerateToken("42", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := NewService("secret-key-2", time.Hour).ValidateToken(token); err != ErrTokenInvalid {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_MissingUserID(t *testing.T) {
	secret := []byte("test-secret-key")
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "nobody",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)

	if _, err := NewService(string(secret), time.Hour).ValidateToken(token); err != ErrTokenInvalid {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_NoSecretConfigured(t *testing.T) {
	token, _ := NewService("test-secret-key", time.Hour).GenerateToken("42", "alice")
	if _, err := NewService("", time.Hour).ValidateToken(token); err != ErrTokenInvalid {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}
