// Package tokenstore persists each tenant's delegated connection: the site
// it authorized and its current token set. Refresh tokens are stored in the
// sealed form produced by the oauth package.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cragr/supportdesk/internal/models"
)

// ErrNotFound is returned when a tenant has no stored connection.
var ErrNotFound = errors.New("connection not found")

// Connection is a tenant's delegated grant.
type Connection struct {
	CloudID       string          `json:"cloudId"`
	SiteURL       string          `json:"siteUrl"`
	SiteName      string          `json:"siteName,omitempty"`
	ServiceDeskID string          `json:"serviceDeskId,omitempty"`
	RequestTypeID string          `json:"requestTypeId,omitempty"`
	ProjectKey    string          `json:"projectKey,omitempty"`
	Tokens        models.TokenSet `json:"tokens"`
	ConnectedAt   time.Time       `json:"connectedAt"`
}

// Store loads and saves tenant connections. Save replaces the whole
// connection, so a rotated token set never coexists with the old one.
type Store interface {
	Load(ctx context.Context, tenantID string) (*Connection, error)
	Save(ctx context.Context, tenantID string, conn *Connection) error
	Delete(ctx context.Context, tenantID string) error
}

// Key returns the Redis key holding a tenant's connection.
func Key(tenantID string) string {
	return fmt.Sprintf("supportdesk:tenant:%s:jira", tenantID)
}

// Redis stores connections as JSON strings.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a Redis-backed store.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Load(ctx context.Context, tenantID string) (*Connection, error) {
	data, err := s.client.Get(ctx, Key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, fmt.Errorf("failed to decode connection: %w", err)
	}
	return &conn, nil
}

func (s *Redis) Save(ctx context.Context, tenantID string, conn *Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("failed to encode connection: %w", err)
	}
	if err := s.client.Set(ctx, Key(tenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, tenantID string) error {
	if err := s.client.Del(ctx, Key(tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Memory keeps connections in process. It is meant for single-instance
// deployments and tests.
type Memory struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{conns: make(map[string]Connection)}
}

func (s *Memory) Load(_ context.Context, tenantID string) (*Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.conns[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &conn, nil
}

func (s *Memory) Save(_ context.Context, tenantID string, conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[tenantID] = *conn
	return nil
}

func (s *Memory) Delete(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, tenantID)
	return nil
}
