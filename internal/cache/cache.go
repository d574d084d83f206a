// Package cache implements the read-through result cache and the
// write-invalidation rules. Caching applies only to tools under the
// read-only policy; a successful mutation flushes the tenant's whole
// braid namespace. Every backend failure is logged and swallowed: the
// cache may never fail a dispatch.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"regexp"
	"time"

	"github.com/braidhq/engine/internal/core"
)

// Namespace prefixes every cache key the engine owns.
const Namespace = "braid"

// Backend is the slice of the store the coordinator needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, namespace, tenantID string) (int, error)
}

// writePatterns maps mutating tool names to the entity whose cached
// reads they poison.
var writePatterns = []struct {
	entity string
	re     *regexp.Regexp
}{
	{"lead", regexp.MustCompile(`^(create|update|delete|qualify|convert)_lead`)},
	{"account", regexp.MustCompile(`^(create|update|delete|merge)_account`)},
	{"contact", regexp.MustCompile(`^(create|update|delete)_contact`)},
	{"opportunity", regexp.MustCompile(`^(create|update|delete)_opportunity`)},
	{"activity", regexp.MustCompile(`^(create|update|delete|complete)_activity`)},
	{"note", regexp.MustCompile(`^(create|update|delete)_note`)},
	{"bizdev", regexp.MustCompile(`^(create|update|delete)_bizdev`)},
}

// MatchWriteEntity returns the entity a mutating tool touches, if any.
func MatchWriteEntity(tool string) (string, bool) {
	for _, p := range writePatterns {
		if p.re.MatchString(tool) {
			return p.entity, true
		}
	}
	return "", false
}

// Fingerprint hashes a canonical argument map to a short stable hex
// string. encoding/json writes map keys in sorted order, so equal maps
// fingerprint equally regardless of insertion order.
func Fingerprint(args core.Args) string {
	raw, err := json.Marshal(args)
	if err != nil {
		// Arguments came off a JSON wire, so this is effectively
		// unreachable; an empty payload keeps the key deterministic.
		raw = []byte("{}")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:12]
}

// Key builds the cache key for one tool call.
func Key(tenantID, tool string, args core.Args) string {
	return Namespace + ":" + tenantID + ":" + tool + ":" + Fingerprint(args)
}

// Coordinator fronts the backend with the engine's caching policy.
type Coordinator struct {
	backend Backend
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{backend: backend, logger: logger.With("component", "cache")}
}

// Lookup returns the cached Result for key. Any backend or decode
// problem reads as a miss.
func (c *Coordinator) Lookup(ctx context.Context, key string) (core.Result, bool) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return core.Result{}, false
	}
	if !ok {
		return core.Result{}, false
	}
	var result core.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("cache entry undecodable, treating as miss", "key", key, "error", err)
		return core.Result{}, false
	}
	return result, true
}

// Store caches a successful Result under key for ttl.
func (c *Coordinator) Store(ctx context.Context, key string, result core.Result, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache store failed", "key", key, "error", err)
	}
}

// InvalidateOnWrite flushes the tenant's cached reads after a
// successful mutation on a recognized entity. Returns the matched
// entity name, or false when the tool mutates nothing cached.
func (c *Coordinator) InvalidateOnWrite(ctx context.Context, tenantID, tool string) (string, bool) {
	entity, ok := MatchWriteEntity(tool)
	if !ok {
		return "", false
	}
	removed, err := c.backend.InvalidateTenant(ctx, Namespace, tenantID)
	if err != nil {
		c.logger.Warn("cache invalidation failed", "tenant", tenantID, "tool", tool, "error", err)
		return entity, true
	}
	c.logger.Debug("cache invalidated", "tenant", tenantID, "entity", entity, "keys", removed)
	return entity, true
}
