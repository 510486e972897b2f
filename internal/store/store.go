package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no record.
var ErrNotFound = errors.New("not found")

// Token is an API credential issued out-of-band.
type Token struct {
	ID        string
	Secret    string // plaintext or a bcrypt hash
	Name      string // display name of the API client
	CreatedAt time.Time
}

// TokenStore defines operations for API token records.
type TokenStore interface {
	GetToken(ctx context.Context, id string) (*Token, error)
	ListTokenIDs(ctx context.Context) ([]string, error)
	PutToken(ctx context.Context, token Token) error
	Close() error
}
