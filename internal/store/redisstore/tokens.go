package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const (
	tokenSecretsKey = "api_clients"
	tokenNamesKey   = "api_clients_name"
)

// TokenStore implements store.TokenStore on two Redis hashes:
// api_clients (id -> secret) and api_clients_name (id -> display name).
type TokenStore struct {
	c *Client
}

// NewTokenStore creates a token store on the shared client.
func NewTokenStore(c *Client) *TokenStore {
	return &TokenStore{c: c}
}

// GetToken retrieves a token by id.
func (s *TokenStore) GetToken(ctx context.Context, id string) (*store.Token, error) {
	return Retry(ctx, s.c.retry, func() (*store.Token, error) {
		var secret, name *redis.StringCmd
		_, err := s.c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			secret = pipe.HGet(ctx, s.c.Key(tokenSecretsKey), id)
			name = pipe.HGet(ctx, s.c.Key(tokenNamesKey), id)
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get token: %w", err)
		}

		sec, err := secret.Result()
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get token secret: %w", err)
		}

		token := &store.Token{ID: id, Secret: sec, Name: name.Val()}
		if token.Name == "" {
			token.Name = id
		}
		return token, nil
	})
}

// ListTokenIDs returns the ids of all registered tokens.
func (s *TokenStore) ListTokenIDs(ctx context.Context) ([]string, error) {
	return Retry(ctx, s.c.retry, func() ([]string, error) {
		ids, err := s.c.rdb.HKeys(ctx, s.c.Key(tokenSecretsKey)).Result()
		if err != nil {
			return nil, fmt.Errorf("list tokens: %w", err)
		}
		return ids, nil
	})
}

// PutToken registers or replaces a token.
func (s *TokenStore) PutToken(ctx context.Context, token store.Token) error {
	_, err := Retry(ctx, s.c.retry, func() (struct{}, error) {
		_, err := s.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.c.Key(tokenSecretsKey), token.ID, token.Secret)
			pipe.HSet(ctx, s.c.Key(tokenNamesKey), token.ID, token.Name)
			return nil
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("put token: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Close is a no-op; the shared client is owned by the caller.
func (s *TokenStore) Close() error {
	return nil
}
