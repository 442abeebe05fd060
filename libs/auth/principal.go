package auth

import (
	"net/http"
	"strings"
)

// Identity headers set by the gateway after token verification. Services
// behind the gateway trust these and nothing else.
const (
	HeaderUserID    = "X-User-Id"
	HeaderRole      = "X-Role"
	HeaderTrainerID = "X-Trainer-Id"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	Role      string
	TrainerID string
}

func (p Principal) IsAdmin() bool   { return p.Role == RoleAdmin }
func (p Principal) IsTrainer() bool { return p.Role == RoleTrainer && p.TrainerID != "" }
func (p Principal) IsMember() bool  { return p.Role == RoleMember }

// PrincipalFromRequest reads the identity headers. ok is false when the
// request carries no valid identity.
func PrincipalFromRequest(r *http.Request) (Principal, bool) {
	p := Principal{
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:      strings.TrimSpace(r.Header.Get(HeaderRole)),
		TrainerID: strings.TrimSpace(r.Header.Get(HeaderTrainerID)),
	}
	if p.UserID == "" || !ValidRole(p.Role) {
		return Principal{}, false
	}
	return p, true
}

// ForwardClaims replaces any client supplied identity headers with the ones
// derived from verified claims.
func ForwardClaims(r *http.Request, c *Claims) {
	StripIdentity(r)
	r.Header.Set(HeaderUserID, c.Subject)
	r.Header.Set(HeaderRole, c.Role)
	if c.TrainerID != "" {
		r.Header.Set(HeaderTrainerID, c.TrainerID)
	}
}

func StripIdentity(r *http.Request) {
	r.Header.Del(HeaderUserID)
	r.Header.Del(HeaderRole)
	r.Header.Del(HeaderTrainerID)
}
