// Package security issues the short-lived service credentials that
// authenticate the engine to the Braid functions runtime, and validates
// tenant API keys presented on the REST surface.
package security

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MaxCredentialTTL caps every minted credential regardless of the
// configured TTL.
const MaxCredentialTTL = 5 * time.Minute

// ServiceClaims are the claims carried by an internal credential.
type ServiceClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Internal bool   `json:"internal"`
}

// MinterConfig configures the credential minter.
type MinterConfig struct {
	Secret string
	// PreviousSecret stays valid for RotationGrace after startup, so
	// in-flight credentials survive a key rotation.
	PreviousSecret string
	RotationGrace  time.Duration
	TTL            time.Duration
	Issuer         string
}

// Minter signs and verifies internal service credentials (HS256).
type Minter struct {
	mu         sync.RWMutex
	secret     []byte
	prevSecret []byte
	graceUntil time.Time

	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewMinter(cfg MinterConfig) *Minter {
	if cfg.TTL <= 0 || cfg.TTL > MaxCredentialTTL {
		cfg.TTL = MaxCredentialTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "braid-engine"
	}
	if cfg.RotationGrace == 0 {
		cfg.RotationGrace = 24 * time.Hour
	}
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = []byte("braid-dev-secret-change-in-production")
	}

	m := &Minter{
		secret: secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	if cfg.PreviousSecret != "" {
		m.prevSecret = []byte(cfg.PreviousSecret)
		m.graceUntil = m.now().Add(cfg.RotationGrace)
	}
	return m
}

// Mint issues a credential for one dispatch on behalf of userID inside
// tenantID.
func (m *Minter) Mint(userID, tenantID string) (string, error) {
	now := m.now()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        fmt.Sprintf("%d", now.UnixNano()),
		},
		TenantID: tenantID,
		Internal: true,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	m.mu.RLock()
	secret := m.secret
	m.mu.RUnlock()
	return tok.SignedString(secret)
}

// Verify parses a credential, trying the current key first and the
// previous key while the rotation grace window is open.
func (m *Minter) Verify(tokenString string) (*ServiceClaims, error) {
	m.mu.RLock()
	secret := m.secret
	prev := m.prevSecret
	graceOpen := len(m.prevSecret) > 0 && m.now().Before(m.graceUntil)
	m.mu.RUnlock()

	claims, err := m.parse(tokenString, secret)
	if err != nil && graceOpen {
		claims, err = m.parse(tokenString, prev)
	}
	if err != nil {
		return nil, err
	}
	if !claims.Internal {
		return nil, errors.New("credential is not an internal token")
	}
	return claims, nil
}

// RotateKey swaps in a new signing secret. The old one keeps verifying
// for 24 hours.
func (m *Minter) RotateKey(newSecret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prevSecret = m.secret
	m.graceUntil = m.now().Add(24 * time.Hour)
	m.secret = []byte(newSecret)
}

func (m *Minter) parse(tokenString string, secret []byte) (*ServiceClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*ServiceClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid credential")
	}
	return claims, nil
}
