// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier accepts only RS256 tokens carrying this service's issuer and
// audience. Errors wrap the library sentinels, so errors.Is(err,
// jwt.ErrTokenExpired) tells expiry apart from forgery.
type Verifier struct {
	pub      *rsa.PublicKey
	issuer   string
	audience string
	now      func() time.Time
}

func NewVerifier(pub *rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		pub:      pub,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

func (v *Verifier) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
}

// Verify checks the signature and registered claims and returns the claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v.pub == nil {
		return nil, errors.New("jwt verifier has no public key")
	}

	claims := &Claims{}
	_, err := v.parser().ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return claims, nil
}

// VerifyAccessToken additionally requires the access purpose and a subject.
func (v *Verifier) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeAccess {
		return nil, fmt.Errorf("%w: purpose %q", jwt.ErrTokenInvalidClaims, claims.Purpose)
	}
	if claims.AdminID == "" || claims.Subject != claims.AdminID {
		return nil, fmt.Errorf("%w: subject mismatch", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}
