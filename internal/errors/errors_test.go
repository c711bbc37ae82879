package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(21001, "Room not found"),
			expected: "[21001] Room not found",
		},
		{
			name:     "with wrapped error",
			err:      ErrStoreUnavailable.Wrap(errors.New("dial tcp: refused")),
			expected: "[50004] Cache store unavailable: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestAppError_WrapKeepsIdentity(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := ErrRoomFull.Wrap(originalErr)

	if appErr.Code != CodeRoomFull {
		t.Errorf("Expected code %d, got %d", CodeRoomFull, appErr.Code)
	}
	if errors.Unwrap(appErr) != originalErr {
		t.Error("Expected unwrapped error to be the original error")
	}
	if ErrRoomFull.Err != nil {
		t.Error("Wrap must not mutate the predefined error")
	}
}

func TestIs(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", ErrGameEnded)

	if !Is(wrapped, ErrGameEnded) {
		t.Error("Expected wrapped AppError to match by code")
	}
	if Is(wrapped, ErrRoomFull) {
		t.Error("Expected different codes not to match")
	}
	if Is(errors.New("plain"), ErrRoomFull) {
		t.Error("Expected plain error not to match")
	}
}

func TestGetCodeAndMessage(t *testing.T) {
	if got := GetCode(ErrRoomNotFound); got != CodeRoomNotFound {
		t.Errorf("Expected %d, got %d", CodeRoomNotFound, got)
	}
	if got := GetCode(errors.New("boom")); got != CodeServerError {
		t.Errorf("Expected server error code, got %d", got)
	}
	if got := GetMessage(ErrRoomCodeRequired); got != "Room code is required" {
		t.Errorf("Unexpected message %q", got)
	}
	if got := GetMessage(ErrRoomFull.WithMessage("Room ABC123 is full")); got != "Room ABC123 is full" {
		t.Errorf("Unexpected message %q", got)
	}
}
