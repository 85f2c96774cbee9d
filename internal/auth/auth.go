// Package auth provides bearer-token authentication for the billing API.
//
// Session/token issuance lives in a separate identity service; this package
// only validates opaque API keys and resolves them to a principal (an agent
// portal user, an admin, or an employee). Keys are stored hashed.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrNoAPIKey      = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid or expired API key")
	ErrKeyNotFound   = errors.New("API key not found")
)

// Role classifies a principal.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Principal is the resolved identity behind an API key.
type Principal struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"` // SHA256 hash of the raw key
	Role      Role       `json:"role"`
	AgentID   string     `json:"agentId,omitempty"` // set for agent/employee principals
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Store persists principals keyed by their hashed API key.
type Store interface {
	Create(ctx context.Context, p *Principal) error
	GetByHash(ctx context.Context, hash string) (*Principal, error)
	GetByAgent(ctx context.Context, agentID string) ([]*Principal, error)
	Update(ctx context.Context, p *Principal) error
	Delete(ctx context.Context, id string) error
}

// Manager handles authentication
type Manager struct {
	store Store
}

// NewManager creates a new auth manager
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// GenerateKey creates a new API key for a principal.
// Returns the raw key (shown once) and the stored metadata.
func (m *Manager) GenerateKey(ctx context.Context, role Role, agentID, name string) (rawKey string, p *Principal, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	rawKey = "sk_" + hex.EncodeToString(b)

	p = &Principal{
		ID:        "pk_" + hex.EncodeToString(b[:8]),
		Hash:      hashKey(rawKey),
		Role:      role,
		AgentID:   agentID,
		Name:      name,
		CreatedAt: time.Now(),
	}

	if err := m.store.Create(ctx, p); err != nil {
		return "", nil, err
	}

	return rawKey, p, nil
}

// SeedKey registers a known raw key (e.g. the bootstrap admin secret from
// config). Idempotent: an existing principal with the same hash is kept.
func (m *Manager) SeedKey(ctx context.Context, rawKey string, role Role, agentID, name string) error {
	hash := hashKey(rawKey)
	if existing, err := m.store.GetByHash(ctx, hash); err == nil && existing != nil {
		return nil
	}
	return m.store.Create(ctx, &Principal{
		ID:        "pk_" + hash[:16],
		Hash:      hash,
		Role:      role,
		AgentID:   agentID,
		Name:      name,
		CreatedAt: time.Now(),
	})
}

// ValidateKey validates an API key and returns the principal behind it.
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*Principal, error) {
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}

	rawKey = strings.TrimPrefix(rawKey, "Bearer ")
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}

	p, err := m.store.GetByHash(ctx, hashKey(rawKey))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}

	if p.Revoked {
		return nil, ErrInvalidAPIKey
	}
	if p.ExpiresAt != nil && time.Now().After(*p.ExpiresAt) {
		return nil, ErrInvalidAPIKey
	}

	// Update last used (fire and forget)
	go func() {
		p.LastUsed = time.Now()
		_ = m.store.Update(context.Background(), p)
	}()

	return p, nil
}

// RevokeKey revokes an agent's API key by id.
func (m *Manager) RevokeKey(ctx context.Context, keyID, agentID string) error {
	keys, err := m.store.GetByAgent(ctx, agentID)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if k.ID == keyID {
			k.Revoked = true
			return m.store.Update(ctx, k)
		}
	}
	return ErrKeyNotFound
}

func hashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
