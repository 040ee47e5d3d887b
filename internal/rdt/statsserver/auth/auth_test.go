package auth

import (
	"testing"
	"time"
)

func createTestManager() *Manager {
	return NewManager("test-secret-key", time.Hour, "rdt-bench")
}

func TestManagerIssueToken(t *testing.T) {
	m := createTestManager()

	token, err := m.IssueToken("alice", "run-1")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if token == "" {
		t.Error("token should not be empty")
	}
}

func TestManagerVerifyToken(t *testing.T) {
	m := createTestManager()

	token, err := m.IssueToken("alice", "run-1")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("failed to verify token: %v", err)
	}
	if claims.Operator != "alice" {
		t.Errorf("expected operator alice, got %s", claims.Operator)
	}
	if claims.RunID != "run-1" {
		t.Errorf("expected run-1, got %s", claims.RunID)
	}
	if claims.Issuer != "rdt-bench" {
		t.Errorf("expected issuer rdt-bench, got %s", claims.Issuer)
	}
}

func TestManagerVerifyTokenInvalid(t *testing.T) {
	m := createTestManager()

	if _, err := m.VerifyToken("not-a-token"); err == nil {
		t.Error("expected an error for a malformed token")
	}
	if _, err := m.VerifyToken(""); err == nil {
		t.Error("expected an error for an empty token")
	}
}

func TestManagerVerifyTokenWrongSecret(t *testing.T) {
	m1 := NewManager("secret1", time.Hour, "issuer")
	m2 := NewManager("secret2", time.Hour, "issuer")

	token, err := m1.IssueToken("alice", "run-1")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := m2.VerifyToken(token); err == nil {
		t.Error("expected verification with a different secret to fail")
	}
}

func TestManagerVerifyTokenExpired(t *testing.T) {
	m := NewManager("test-secret", time.Millisecond, "issuer")

	token, err := m.IssueToken("alice", "run-1")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, err := m.VerifyToken(token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestManagerVerifyTokenMissingClaims(t *testing.T) {
	m := createTestManager()

	token, err := m.IssueToken("", "run-1")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := m.VerifyToken(token); err != ErrMissingClaims {
		t.Errorf("expected ErrMissingClaims for a missing operator, got %v", err)
	}

	token2, err := m.IssueToken("alice", "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := m.VerifyToken(token2); err != ErrMissingClaims {
		t.Errorf("expected ErrMissingClaims for a missing run id, got %v", err)
	}
}

func TestManagerExpire(t *testing.T) {
	m := createTestManager()
	if m.Expire() != time.Hour {
		t.Errorf("expected 1h expiry, got %v", m.Expire())
	}
}
