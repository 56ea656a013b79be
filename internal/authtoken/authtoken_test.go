package authtoken

import (
	"testing"
	"time"
)

func TestGrantAndVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret")
	token, err := m.Grant(
		[]ResourceGrant{{Name: "demo-channel", Permissions: PermRead | PermWrite}},
		nil,
		"client-uuid-1",
		time.Hour,
	)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !claims.Allows("demo-channel", PermRead) {
		t.Fatalf("expected demo-channel to allow read")
	}
	if claims.Allows("demo-channel", PermManage) {
		t.Fatalf("did not expect demo-channel to allow manage")
	}
	if claims.AuthorizedUUID != "client-uuid-1" {
		t.Fatalf("got uuid %q", claims.AuthorizedUUID)
	}
}

func TestGrantRejectsNonPositiveTTL(t *testing.T) {
	m := NewManager("test-secret")
	if _, err := m.Grant(nil, nil, "", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1 := NewManager("secret-one")
	m2 := NewManager("secret-two")
	token, err := m1.Grant([]ResourceGrant{{Name: "ch", Permissions: PermRead}}, nil, "", time.Hour)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if _, err := m2.Verify(token); err == nil {
		t.Fatalf("expected verification with wrong secret to fail")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret")
	token, err := m.Grant([]ResourceGrant{{Name: "ch", Permissions: PermRead}}, nil, "", time.Nanosecond)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := m.Verify(token); err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
}
