package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RoleAdmin   = "admin"
	RoleTrainer = "trainer"
	RoleMember  = "member"
)

// ValidRole reports whether role is one of the account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTrainer, RoleMember:
		return true
	}
	return false
}

// Claims carried in FitBook access tokens. Subject is the user id; TrainerID
// is only set for trainer accounts and links them to their trainer profile.
type Claims struct {
	Role      string `json:"role"`
	TrainerID string `json:"trainer_id,omitempty"`
	jwt.RegisteredClaims
}

func NewClaims(userID, role, trainerID string, ttl time.Duration) Claims {
	now := time.Now().UTC()
	return Claims{
		Role:      role,
		TrainerID: trainerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

type Header struct {
	Alg string
	Kid string
}

// ParseHeader decodes the token header without verifying the signature. It is
// used to pick the verification key.
func ParseHeader(token string) (*Header, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	h := &Header{}
	h.Alg, _ = parsed.Header["alg"].(string)
	h.Kid, _ = parsed.Header["kid"].(string)
	return h, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return parse(token, jwt.SigningMethodHS256.Alg(), []byte(secret))
}

func SignRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		t.Header["kid"] = kid
	}
	return t.SignedString(key)
}

func VerifyRS256(token string, pub *rsa.PublicKey) (*Claims, error) {
	if pub == nil {
		return nil, ErrInvalidToken
	}
	return parse(token, jwt.SigningMethodRS256.Alg(), pub)
}

// ParseRSAPrivateKey accepts PKCS#1 or PKCS#8 PEM.
func ParseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	return key, nil
}

func parse(token, alg string, key any) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{alg}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !ValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
