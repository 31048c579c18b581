// internal/pkg/jwt/loader.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"
)

type Config struct {
	PrivPath string
	PubPath  string
	Issuer   string
	Audience string
	TTL      time.Duration
	KID      string
	// Clock overrides time.Now for signing and validation.
	Clock func() time.Time
}

type Manager struct {
	Generator *Generator
	Verifier  *Verifier
}

func LoadAndBuild(cfg Config) (*Manager, error) {
	priv, err := LoadRSAPrivateKeyFromPEM(cfg.PrivPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key from %s: %w", cfg.PrivPath, err)
	}

	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key from %s: %w", cfg.PubPath, err)
	}

	return build(priv, pub, cfg), nil
}

// FromKey builds a manager around an already loaded key pair.
func FromKey(priv *rsa.PrivateKey, cfg Config) *Manager {
	return build(priv, &priv.PublicKey, cfg)
}

func build(priv *rsa.PrivateKey, pub *rsa.PublicKey, cfg Config) *Manager {
	m := &Manager{
		Generator: NewGenerator(priv, cfg.Issuer, cfg.Audience, cfg.KID, cfg.TTL),
		Verifier:  NewVerifier(pub, cfg.Issuer, cfg.Audience),
	}
	if cfg.Clock != nil {
		m.Generator.now = cfg.Clock
		m.Verifier.now = cfg.Clock
	}
	return m
}
