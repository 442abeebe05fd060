package auth

// Verifier checks access tokens issued by auth-service. HS256 tokens are
// verified with Secret; RS256 tokens carrying a kid are verified against the
// JWKS endpoint when JWKS is set.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
}

func (v Verifier) Verify(token string) (*Claims, error) {
	if v.JWKS == nil {
		return ParseAndVerifyHS256(token, v.Secret)
	}
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Alg == "RS256" && header.Kid != "" {
		pub, err := v.JWKS.Get(header.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		return VerifyRS256(token, pub)
	}
	return ParseAndVerifyHS256(token, v.Secret)
}
