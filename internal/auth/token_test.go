package auth

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-secret"

func TestSignToken(t *testing.T) {
	t.Run("Given a session When signed Then the token has three base64url segments", func(t *testing.T) {
		token, err := SignToken(Session{UserID: "u1", Email: "a@b.c", Name: "A"}, testSecret, time.Hour)
		if err != nil {
			t.Fatalf("SignToken failed: %v", err)
		}
		parts := strings.Split(token, ".")
		if len(parts) != 3 {
			t.Fatalf("expected 3 segments, got %d", len(parts))
		}
		for i, p := range parts {
			if p == "" {
				t.Errorf("segment %d is empty", i)
			}
			if strings.ContainsAny(p, "+/=") {
				t.Errorf("segment %d is not base64url: %q", i, p)
			}
		}
	})
}

func TestVerifyToken(t *testing.T) {
	session := Session{UserID: "user-123", Email: "user@example.com", Name: "Test User"}

	t.Run("Given a valid token When verified Then the session round-trips", func(t *testing.T) {
		token, err := SignToken(session, testSecret, time.Hour)
		if err != nil {
			t.Fatalf("SignToken failed: %v", err)
		}

		got, err := VerifyToken(token, testSecret)
		if err != nil {
			t.Fatalf("VerifyToken failed: %v", err)
		}
		if got != session {
			t.Errorf("session mismatch: got %+v, want %+v", got, session)
		}
	})

	t.Run("Given a token signed with another secret When verified Then it is rejected", func(t *testing.T) {
		token, err := SignToken(session, "other-secret", time.Hour)
		if err != nil {
			t.Fatalf("SignToken failed: %v", err)
		}

		if _, err := VerifyToken(token, testSecret); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Given a tampered signature When verified Then it is rejected", func(t *testing.T) {
		token, err := SignToken(session, testSecret, time.Hour)
		if err != nil {
			t.Fatalf("SignToken failed: %v", err)
		}

		// Flip the last signature character.
		last := token[len(token)-1]
		flipped := byte('A')
		if last == 'A' {
			flipped = 'B'
		}
		tampered := token[:len(token)-1] + string(flipped)

		if _, err := VerifyToken(tampered, testSecret); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Given an expired token When verified Then it is rejected", func(t *testing.T) {
		token, err := SignToken(session, testSecret, -time.Minute)
		if err != nil {
			t.Fatalf("SignToken failed: %v", err)
		}

		if _, err := VerifyToken(token, testSecret); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Given malformed input When verified Then it is rejected", func(t *testing.T) {
		for _, input := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
			if _, err := VerifyToken(input, testSecret); err != ErrInvalidToken {
				t.Errorf("input %q: expected ErrInvalidToken, got %v", input, err)
			}
		}
	})
}

func TestRandomToken(t *testing.T) {
	t.Run("Given repeated calls When generating Then tokens are distinct and URL-safe", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			tok := RandomToken()
			if tok == "" {
				t.Fatal("empty token")
			}
			if strings.ContainsAny(tok, "+/=") {
				t.Errorf("token is not base64url: %q", tok)
			}
			if seen[tok] {
				t.Fatalf("duplicate token: %q", tok)
			}
			seen[tok] = true
		}
	})
}
