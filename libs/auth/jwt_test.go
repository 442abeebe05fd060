package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := NewClaims("user-1", RoleTrainer, "trainer-9", time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.Role != RoleTrainer || parsed.TrainerID != "trainer-9" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(NewClaims("user-1", RoleMember, "", -time.Minute), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestUnknownRoleRejected(t *testing.T) {
	token, err := SignHS256(NewClaims("user-1", "owner", "", time.Hour), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected token with unknown role to be rejected")
	}
}

func TestRS256Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	kid := KeyID(&key.PublicKey)
	token, err := SignRS256(NewClaims("user-2", RoleAdmin, "", time.Hour), key, kid)
	if err != nil {
		t.Fatalf("SignRS256 failed: %v", err)
	}

	header, err := ParseHeader(token)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if header.Alg != "RS256" || header.Kid != kid {
		t.Fatalf("unexpected header %+v", header)
	}

	parsed, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if parsed.Subject != "user-2" || parsed.Role != RoleAdmin {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	// An RS256 token must not verify as HS256 with the public modulus as secret.
	if _, err := ParseAndVerifyHS256(token, "anything"); err == nil {
		t.Fatal("expected algorithm mismatch to fail")
	}
}

func TestJWKRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	pub, err := jwkToPublicKey(PublicJWK(&key.PublicKey, "k1"))
	if err != nil {
		t.Fatalf("jwkToPublicKey failed: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
		t.Fatal("public key mismatch after JWK round trip")
	}
}

func TestPrincipalFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if _, ok := PrincipalFromRequest(req); ok {
		t.Fatal("expected no principal without headers")
	}

	req.Header.Set(HeaderUserID, "client-forged")
	req.Header.Set(HeaderRole, RoleAdmin)
	claims := NewClaims("u-7", RoleMember, "", time.Hour)
	ForwardClaims(req, &claims)

	p, ok := PrincipalFromRequest(req)
	if !ok {
		t.Fatal("expected principal")
	}
	if p.UserID != "u-7" || !p.IsMember() || p.IsAdmin() {
		t.Fatalf("unexpected principal %+v", p)
	}
}
