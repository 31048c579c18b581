// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

type Generator struct {
	priv     *rsa.PrivateKey
	issuer   string
	audience string
	kid      string // key id for rotation
	Ttl      time.Duration
	now      func() time.Time
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, ttl time.Duration) *Generator {
	return &Generator{
		priv:     priv,
		issuer:   issuer,
		audience: audience,
		kid:      kid,
		Ttl:      ttl,
		now:      time.Now,
	}
}

// AccessSubject is what an access token asserts about its bearer.
type AccessSubject struct {
	AdminID     string
	Email       string
	RoleID      string
	RoleName    string
	Permissions []string
	Device      string
}

// Issued describes a signed token.
type Issued struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// GenerateAccessToken signs a short-lived RS256 access token.
func (g *Generator) GenerateAccessToken(sub AccessSubject) (Issued, error) {
	if g.priv == nil {
		return Issued{}, fmt.Errorf("jwt generator has nil private key")
	}
	if sub.AdminID == "" {
		return Issued{}, fmt.Errorf("jwt subject is empty")
	}

	now := g.now()
	jti := ulid.Make().String()
	expiresAt := now.Add(g.Ttl)

	claims := &Claims{
		AdminID:     sub.AdminID,
		Email:       sub.Email,
		RoleID:      sub.RoleID,
		RoleName:    sub.RoleName,
		Permissions: sub.Permissions,
		Device:      sub.Device,
		Purpose:     PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   sub.AdminID,
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}

	signed, err := tok.SignedString(g.priv)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}
