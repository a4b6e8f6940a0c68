package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	s, err := NewSigner("secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := s.GenerateToken("sess-1")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s.ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "sess-1" || claims.Issuer != issuer {
		t.Errorf("claims = %+v", claims)
	}
	if err := s.Authorize(tok, "sess-1"); err != nil {
		t.Errorf("Authorize: %v", err)
	}
	if err := s.Authorize(tok, "sess-2"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authorize other session: %v", err)
	}
}

func TestTokenRejected(t *testing.T) {
	s, _ := NewSigner("secret", time.Minute)
	other, _ := NewSigner("other", time.Minute)
	tok, _ := s.GenerateToken("sess-1")

	expired, _ := NewSigner("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.GenerateToken("sess-1")

	tests := []struct {
		name  string
		token string
		by    *Signer
	}{
		{"garbage", "not.a.token", s},
		{"empty", "", s},
		{"wrong secret", tok, other},
		{"expired", old, s},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.by.ParseToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewSignerNeedsSecret(t *testing.T) {
	if _, err := NewSigner("", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("err = %v", err)
	}
}
