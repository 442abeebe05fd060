package handlers

import (
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"sort"
	"sync"

	"github.com/md-rashed-zaman/fitbook/libs/auth"
)

var ErrUnknownKid = errors.New("unknown kid")

type TokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	// JWKS is empty for symmetric signers.
	JWKS() []auth.JWK
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) TokenSigner {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWKS() []auth.JWK { return nil }

// RSASigner signs with the active key of a key set and verifies against any
// key in it, so tokens survive a rotation until they expire.
type RSASigner struct {
	mu     sync.RWMutex
	active string
	keys   map[string]*rsa.PrivateKey
}

func NewRSASigner(keys map[string]*rsa.PrivateKey, activeKid string) (*RSASigner, error) {
	if len(keys) == 0 {
		return nil, errors.New("no rsa keys provided")
	}
	s := &RSASigner{keys: keys, active: activeKid}
	if s.active == "" {
		kids := s.kids()
		s.active = kids[0]
	}
	if s.keys[s.active] == nil {
		return nil, ErrUnknownKid
	}
	return s, nil
}

func (s *RSASigner) kids() []string {
	kids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

func (s *RSASigner) Sign(claims auth.Claims) (string, error) {
	s.mu.RLock()
	kid, key := s.active, s.keys[s.active]
	s.mu.RUnlock()
	return auth.SignRS256(claims, key, kid)
}

func (s *RSASigner) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	key := s.keys[header.Kid]
	s.mu.RUnlock()
	if key == nil {
		return nil, auth.ErrInvalidToken
	}
	return auth.VerifyRS256(token, &key.PublicKey)
}

func (s *RSASigner) JWKS() []auth.JWK {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.JWK, 0, len(s.keys))
	for _, kid := range s.kids() {
		out = append(out, auth.PublicJWK(&s.keys[kid].PublicKey, kid))
	}
	return out
}

func (s *RSASigner) ActiveKid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *RSASigner) SetActiveKid(kid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[kid] == nil {
		return ErrUnknownKid
	}
	s.active = kid
	return nil
}

// ParseRSAKeySet reads one or more PEM private keys and indexes them by the
// kid derived from each public modulus.
func ParseRSAKeySet(pemBlobs []byte) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	rest := pemBlobs
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := auth.ParseRSAPrivateKey(pem.EncodeToMemory(block))
		if err != nil {
			return nil, err
		}
		keys[auth.KeyID(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}
