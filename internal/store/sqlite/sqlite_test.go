package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(Schema())
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []store.Token{
		{ID: "tok2", Secret: "b", Name: ""},
		{ID: "tok1", Secret: "a", Name: "mybot"},
	}
	for _, tok := range seed {
		if err := s.PutToken(ctx, tok); err != nil {
			t.Fatalf("failed to put token %s: %v", tok.ID, err)
		}
	}

	tests := []struct {
		name       string
		id         string
		wantSecret string
		wantName   string
		wantErr    error
	}{
		{name: "named token", id: "tok1", wantSecret: "a", wantName: "mybot"},
		{name: "name falls back to id", id: "tok2", wantSecret: "b", wantName: "tok2"},
		{name: "unknown token", id: "ghost", wantErr: store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := s.GetToken(ctx, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetToken failed: %v", err)
			}
			if tok.Secret != tt.wantSecret || tok.Name != tt.wantName {
				t.Errorf("unexpected token: %+v", tok)
			}
		})
	}

	ids, err := s.ListTokenIDs(ctx)
	if err != nil {
		t.Fatalf("ListTokenIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "tok1" || ids[1] != "tok2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestPutTokenReplacesSecret(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutToken(ctx, store.Token{ID: "tok1", Secret: "old", Name: "bot"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutToken(ctx, store.Token{ID: "tok1", Secret: "new", Name: "bot2"}); err != nil {
		t.Fatalf("put again: %v", err)
	}

	tok, err := s.GetToken(ctx, "tok1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tok.Secret != "new" || tok.Name != "bot2" {
		t.Fatalf("expected replaced token, got %+v", tok)
	}
}
