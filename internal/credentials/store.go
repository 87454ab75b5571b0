// Package credentials manages the single optional user-supplied API key. The
// key lives in a provider-keyed Postgres slot; its absence falls back to the
// environment-default credential at the point of use, which is never stored.
package credentials

import (
	"context"
	"errors"
	"strings"

	"studio/internal/infra"
)

const ProviderGemini = "gemini"

// Validator confirms a candidate key against the live service before it is
// adopted.
type Validator interface {
	ValidateKey(ctx context.Context, apiKey string) error
}

type Store struct {
	sql        infra.SQLExecutor
	validator  Validator
	defaultKey string
}

func NewStore(sql infra.SQLExecutor, validator Validator, defaultKey string) *Store {
	return &Store{sql: sql, validator: validator, defaultKey: strings.TrimSpace(defaultKey)}
}

const qSelectToken = `
SELECT token FROM integration_tokens WHERE provider = $1;
`

const qUpsertToken = `
INSERT INTO integration_tokens (provider, token, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (provider) DO UPDATE SET token = EXCLUDED.token, updated_at = NOW();
`

const qDeleteToken = `
DELETE FROM integration_tokens WHERE provider = $1;
`

// Load returns the stored user key, or "" when none is configured.
func (s *Store) Load(ctx context.Context) (string, error) {
	row := s.sql.QueryRow(ctx, qSelectToken, ProviderGemini)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Save validates the candidate with a minimal live call and persists it only
// on success. A failed validation leaves any previously stored key untouched.
func (s *Store) Save(ctx context.Context, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return errors.New("api key is required")
	}
	if err := s.validator.ValidateKey(ctx, candidate); err != nil {
		return err
	}
	_, err := s.sql.Exec(ctx, qUpsertToken, ProviderGemini, candidate)
	return err
}

// Clear removes the stored key; subsequent calls revert to the environment
// default.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, qDeleteToken, ProviderGemini)
	return err
}

// Effective resolves the credential for an outbound call: the stored user key
// when present, else the environment default. personal reports whether a
// user-supplied key is in effect, which decides the batch quota-abort rule.
func (s *Store) Effective(ctx context.Context) (key string, personal bool, err error) {
	stored, err := s.Load(ctx)
	if err != nil {
		return "", false, err
	}
	if stored != "" {
		return stored, true, nil
	}
	return s.defaultKey, false, nil
}
