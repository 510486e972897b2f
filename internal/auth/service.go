package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

var (
	// ErrInvalidTokenName is returned when issuing a token without a display name.
	ErrInvalidTokenName = errors.New("invalid token name")
)

// Identity is a resolved API client.
type Identity struct {
	TokenID string
	Name    string
}

// Service validates API credentials against a token store.
// It never creates or revokes credentials on the request path; Issue exists for the admin CLI.
type Service struct {
	store store.TokenStore
	log   *zerolog.Logger
}

// NewService creates a new token service.
func NewService(tokenStore store.TokenStore, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store: tokenStore,
		log:   logger,
	}
}

// Authenticate reports whether secret is valid for token id.
// Unknown ids and store failures both yield false.
func (s *Service) Authenticate(ctx context.Context, id, secret string) bool {
	_, ok := s.verify(ctx, id, secret)
	return ok
}

// Resolve authenticates and returns the identity of the API client.
// The name comes from the same record the secret was checked against.
func (s *Service) Resolve(ctx context.Context, id, secret string) (*Identity, bool) {
	token, ok := s.verify(ctx, id, secret)
	if !ok {
		return nil, false
	}
	return &Identity{TokenID: id, Name: displayName(token)}, true
}

func (s *Service) verify(ctx context.Context, id, secret string) (*store.Token, bool) {
	if id == "" || secret == "" {
		CompareSecret(unknownSecret, secret)
		return nil, false
	}

	token, err := s.store.GetToken(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Msg("token lookup failed")
		}
		CompareSecret(unknownSecret, secret)
		return nil, false
	}

	if !CompareSecret(token.Secret, secret) {
		return nil, false
	}
	return token, true
}

// NameOf returns the display name of a token, falling back to its id.
func (s *Service) NameOf(ctx context.Context, id string) string {
	token, err := s.store.GetToken(ctx, id)
	if err != nil {
		return id
	}
	return displayName(token)
}

func displayName(token *store.Token) string {
	if token.Name == "" {
		return token.ID
	}
	return token.Name
}

// TokenIDs lists every registered token id. Each id owns one durable queue.
func (s *Service) TokenIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListTokenIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list token ids: %w", err)
	}
	return ids, nil
}

// IssueRequest describes a token to register out-of-band.
type IssueRequest struct {
	ID     string // generated when empty
	Name   string
	Secret string // generated when empty
	Hash   bool   // store a bcrypt hash instead of the plaintext secret
}

// Issue registers a token and returns it with the plaintext secret.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (store.Token, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return store.Token{}, ErrInvalidTokenName
	}

	token := store.Token{
		ID:     req.ID,
		Name:   name,
		Secret: req.Secret,
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.Secret == "" {
		token.Secret = utils.NewSecret()
	}

	stored := token
	if req.Hash {
		hashed, err := HashSecret(token.Secret)
		if err != nil {
			return store.Token{}, err
		}
		stored.Secret = hashed
	}

	if err := s.store.PutToken(ctx, stored); err != nil {
		return store.Token{}, fmt.Errorf("put token: %w", err)
	}

	return token, nil
}
