package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/braidhq/engine/internal/database"
)

// keyPrefix is the public marker on every Braid API key.
// Full key format: braid_<key_id>_<secret>.
const keyPrefix = "braid_"

// KeyStore is the persistence surface API-key management needs.
// Satisfied by *database.SupabaseClient.
type KeyStore interface {
	GetAPIKey(ctx context.Context, keyID string) (*database.APIKey, error)
	GetTenant(ctx context.Context, tenantID string) (*database.Tenant, error)
	InsertRow(table string, row interface{}) error
}

// Authenticator validates API keys presented on the REST surface and
// resolves them to an active tenant.
type Authenticator struct {
	db KeyStore
}

func NewAuthenticator(db KeyStore) *Authenticator {
	return &Authenticator{db: db}
}

// CreateAPIKey mints a key for a tenant. The full key is returned once
// and never stored; only a bcrypt hash of the secret half persists.
func (a *Authenticator) CreateAPIKey(ctx context.Context, tenantID, name, role string) (*database.APIKey, string, error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, "", err
	}
	keyID := hex.EncodeToString(idBytes)

	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", err
	}
	secret := hex.EncodeToString(secretBytes)

	fullKey := fmt.Sprintf("%s%s_%s", keyPrefix, keyID, secret)

	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	apiKey := &database.APIKey{
		KeyID:    keyID,
		TenantID: tenantID,
		Name:     name,
		KeyHash:  string(secretHash),
		Role:     role,
		IsActive: true,
	}
	if err := a.db.InsertRow("api_keys", apiKey); err != nil {
		return nil, "", err
	}
	return apiKey, fullKey, nil
}

// ValidateAPIKey checks a presented key and returns the key row and its
// active tenant.
func (a *Authenticator) ValidateAPIKey(ctx context.Context, fullKey string) (*database.APIKey, *database.Tenant, error) {
	keyID, secret, err := splitKey(fullKey)
	if err != nil {
		return nil, nil, err
	}

	apiKey, err := a.db.GetAPIKey(ctx, keyID)
	if err != nil {
		return nil, nil, fmt.Errorf("key lookup failed: %w", err)
	}
	if apiKey == nil {
		return nil, nil, errors.New("invalid api key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(apiKey.KeyHash), []byte(secret)); err != nil {
		return nil, nil, errors.New("invalid api key secret")
	}
	if !apiKey.IsActive {
		return nil, nil, errors.New("api key inactive")
	}

	tenant, err := a.LoadTenant(ctx, apiKey.TenantID)
	if err != nil {
		return nil, nil, err
	}
	return apiKey, tenant, nil
}

// LoadTenant fetches a tenant and rejects inactive ones.
func (a *Authenticator) LoadTenant(ctx context.Context, tenantID string) (*database.Tenant, error) {
	tenant, err := a.db.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, errors.New("tenant not found")
	}
	if tenant.Status != "ACTIVE" && tenant.Status != "TRIAL" {
		return nil, fmt.Errorf("tenant is %s", tenant.Status)
	}
	return tenant, nil
}

func splitKey(fullKey string) (keyID, secret string, err error) {
	if !strings.HasPrefix(fullKey, keyPrefix) {
		return "", "", errors.New("invalid key format")
	}
	parts := strings.SplitN(strings.TrimPrefix(fullKey, keyPrefix), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid key format")
	}
	return parts[0], parts[1], nil
}
