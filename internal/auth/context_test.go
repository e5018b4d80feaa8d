package auth

import (
	"context"
	"testing"
)

func TestAuthContext_RoundTrip(t *testing.T) {
	ctx := WithAuth(context.Background(), &AuthContext{UserID: "alice"})

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext() = nil, want AuthContext")
	}
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want %q", got.UserID, "alice")
	}
	if UserID(ctx) != "alice" {
		t.Errorf("UserID(ctx) = %q, want %q", UserID(ctx), "alice")
	}
}

func TestAuthContext_Missing(t *testing.T) {
	ctx := context.Background()

	if FromContext(ctx) != nil {
		t.Error("FromContext() on empty context should be nil")
	}
	if UserID(ctx) != "" {
		t.Errorf("UserID(ctx) = %q, want empty", UserID(ctx))
	}
}
