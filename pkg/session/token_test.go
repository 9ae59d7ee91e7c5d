package session

import (
	"testing"
	"time"

	"smarthive/pkg/domain"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", ttl)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t, 0)
	user := domain.User{
		ID:        42,
		Email:     "bee@example.com",
		Role:      domain.RoleUser,
		FirstName: "Maya",
		LastName:  "Keeper",
	}
	token, err := m.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "bee@example.com" || claims.Role != domain.RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.AdminID != 0 {
		t.Fatalf("non-admin token must not carry adminId, got %d", claims.AdminID)
	}
}

func TestAdminTokenCarriesAdminID(t *testing.T) {
	m := newTestManager(t, 0)
	token, err := m.Issue(domain.User{ID: 7, Email: "ops@example.com", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AdminID != 7 {
		t.Fatalf("expected adminId 7, got %d", claims.AdminID)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := newTestManager(t, time.Nanosecond)
	token, err := m.Issue(domain.User{ID: 1, Email: "late@example.com", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := m.Verify(token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t, 0)
	other, err := NewManager("different-secret", 0)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := other.Issue(domain.User{ID: 9, Email: "x@example.com", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := newTestManager(t, 0)
	for _, token := range []string{"", "   ", "not.a.jwt"} {
		if _, err := m.Verify(token); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}
