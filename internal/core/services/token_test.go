package services

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"meshup/internal/core/domain"
	"meshup/internal/plugins/memory"
	"meshup/pkg/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenService("secret", "meshup", time.Hour)
	id := uuid.New()

	raw, err := tokens.GenerateToken(id)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	got, err := tokens.ValidateToken(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got != id {
		t.Errorf("subject = %s, want %s", got, id)
	}

	if _, err := NewTokenService("other", "meshup", time.Hour).ValidateToken(raw); err == nil {
		t.Error("token signed with another secret accepted")
	}
	if _, err := NewTokenService("secret", "elsewhere", time.Hour).ValidateToken(raw); err == nil {
		t.Error("token from another issuer accepted")
	}
	expired, _ := NewTokenService("secret", "meshup", -time.Minute).GenerateToken(id)
	if _, err := tokens.ValidateToken(expired); err == nil {
		t.Error("expired token accepted")
	}
}

func TestValidateTokenFallsBackToSub(t *testing.T) {
	id := uuid.New()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": id.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := NewTokenService("secret", "", time.Hour).ValidateToken(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got != id {
		t.Errorf("subject = %s", got)
	}
}

func TestAuthenticate(t *testing.T) {
	store := memory.NewStore()
	user := domain.Principal{ID: uuid.New(), Username: "alice"}
	store.PutUser(user)
	tokens := NewTokenService("secret", "meshup", time.Hour)
	auth := NewAuthenticator(logging.Discard(), tokens, store)

	valid, _ := tokens.GenerateToken(user.ID)
	stranger, _ := tokens.GenerateToken(uuid.New())

	cases := []struct {
		name   string
		url    string
		header string
		want   bool
	}{
		{"query token", "/ws?token=" + valid, "", true},
		{"bearer header", "/ws", "Bearer " + valid, true},
		{"lowercase scheme", "/ws", "bearer " + valid, true},
		{"basic scheme", "/ws", "Basic " + valid, false},
		{"garbage", "/ws?token=nope", "", false},
		{"unknown user", "/ws?token=" + stranger, "", false},
		{"none", "/ws", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", c.url, nil)
			if c.header != "" {
				r.Header.Set("Authorization", c.header)
			}
			p := auth.Authenticate(context.Background(), r)
			if (p != nil) != c.want {
				t.Fatalf("principal = %v, want present=%v", p, c.want)
			}
			if p != nil && p.ID != user.ID {
				t.Errorf("principal id = %s", p.ID)
			}
		})
	}
}
