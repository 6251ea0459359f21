package auth

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/medchat-server/internal/core"
)

// Verifier turns bearer credentials into identities.
type Verifier struct {
	cfg *JWTConfig
}

// NewVerifier creates a verifier for cfg.
func NewVerifier(cfg *JWTConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify validates token and returns the identity it carries. Every failure
// wraps core.ErrUnauthenticated.
func (v *Verifier) Verify(token string) (core.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Identity{}, fmt.Errorf("%w: missing token", core.ErrUnauthenticated)
	}
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return core.Identity{
		UserID:    claims.Subject,
		Username:  username,
		Role:      claims.Role,
		Clearance: claims.Clearance,
	}, nil
}
