// Package webhooks pushes engine events to registered HTTP endpoints.
// Delivery is asynchronous and best-effort: bounded retries with
// backoff, and endpoints that keep failing are disabled rather than
// allowed to stall the queue. Payloads are HMAC-signed when the
// endpoint carries a secret.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// An endpoint is disabled after this many failures without a
// successful delivery in between.
const maxFailures = 10

// Endpoint is one registered webhook target.
type Endpoint struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	TenantID  string    `json:"tenant_id,omitempty"` // empty receives every tenant
	Events    []string  `json:"events,omitempty"`    // empty receives every type
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	FailCount int       `json:"fail_count"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *Endpoint) wants(eventType string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, et := range e.Events {
		if et == eventType {
			return true
		}
	}
	return false
}

// Registry holds the registered endpoints. Matching hands out value
// copies so deliveries never touch shared state outside the lock.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Endpoint
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Endpoint)}
}

// Register validates and stores an endpoint, assigning it an id when
// the caller did not.
func (r *Registry) Register(e *Endpoint) error {
	if e.URL == "" {
		return fmt.Errorf("webhook endpoint needs a url")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = "wh-" + uuid.NewString()
	}
	if _, exists := r.byID[e.ID]; exists {
		return fmt.Errorf("webhook %s already registered", e.ID)
	}
	e.Active = true
	e.FailCount = 0
	e.CreatedAt = time.Now().UTC()
	r.byID[e.ID] = e
	return nil
}

// Unregister removes an endpoint.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("webhook %s not found", id)
	}
	delete(r.byID, id)
	return nil
}

// List returns every endpoint ordered by creation time.
func (r *Registry) List() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Endpoint, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Matching returns the active endpoints subscribed to eventType for
// the event's tenant. A tenant-scoped endpoint never sees another
// tenant's events; an unscoped endpoint sees them all.
func (r *Registry) Matching(eventType, tenantID string) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Endpoint
	for _, e := range r.byID {
		if !e.Active || !e.wants(eventType) {
			continue
		}
		if e.TenantID != "" && e.TenantID != tenantID {
			continue
		}
		out = append(out, *e)
	}
	return out
}

func (r *Registry) markDelivered(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[id]; ok {
		e.FailCount = 0
	}
}

func (r *Registry) markFailed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return
	}
	e.FailCount++
	if e.FailCount >= maxFailures {
		e.Active = false
	}
}

// Sign computes the hex HMAC-SHA256 of payload under secret. Receivers
// recompute it to authenticate the delivery.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
