package jwt

import (
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	return FromKey(key, cfg)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager(t, Config{Issuer: "iam", Audience: "admins", TTL: 15 * time.Minute, KID: "k1"})

	issued, err := m.Generator.GenerateAccessToken(AccessSubject{
		AdminID:     "admin_1",
		Email:       "root@example.com",
		RoleName:    "SUPER_ADMIN",
		Permissions: []string{"ROLES:MANAGE"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, issued.JTI)

	claims, err := m.Verifier.VerifyAccessToken(issued.Token)
	require.NoError(t, err)
	require.Equal(t, "admin_1", claims.AdminID)
	require.Equal(t, "admin_1", claims.Subject)
	require.True(t, claims.HasPermission("ROLES:MANAGE"))
	require.False(t, claims.HasPermission("ROLES:DELETE"))
}

func TestVerifyRejectsForeignAudienceAndKey(t *testing.T) {
	cfg := Config{Issuer: "iam", Audience: "admins", TTL: time.Minute}
	m := testManager(t, cfg)
	issued, err := m.Generator.GenerateAccessToken(AccessSubject{AdminID: "admin_1"})
	require.NoError(t, err)

	other := testManager(t, cfg)
	_, err = other.Verifier.VerifyAccessToken(issued.Token)
	require.Error(t, err)

	wrongAud := NewVerifier(&m.Generator.priv.PublicKey, "iam", "customers")
	_, err = wrongAud.VerifyAccessToken(issued.Token)
	require.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	m := testManager(t, Config{Issuer: "iam", Audience: "admins", TTL: time.Minute})
	m.Generator.now = func() time.Time { return time.Now().Add(-time.Hour) }

	issued, err := m.Generator.GenerateAccessToken(AccessSubject{AdminID: "admin_1"})
	require.NoError(t, err)
	_, err = m.Verifier.VerifyAccessToken(issued.Token)
	require.ErrorIs(t, err, gojwt.ErrTokenExpired)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	m := testManager(t, Config{Issuer: "iam", Audience: "admins", TTL: time.Minute})

	now := time.Now()
	forged := gojwt.NewWithClaims(gojwt.SigningMethodHS256, &Claims{
		AdminID: "admin_1",
		Purpose: PurposeAccess,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    "iam",
			Subject:   "admin_1",
			Audience:  []string{"admins"},
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	raw, err := forged.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = m.Verifier.VerifyAccessToken(raw)
	require.ErrorIs(t, err, gojwt.ErrTokenSignatureInvalid)
}

func TestParseKeys(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	parsed, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	require.True(t, key.Equal(parsed))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub, err := ParseRSAPublicKey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(pub))

	_, err = ParseRSAPrivateKey([]byte("garbage"))
	require.Error(t, err)
}
