package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"swvanews/internal/core"
)

type postgresTokenRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresTokenRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresTokenRepo) Upsert(ctx context.Context, token *core.OAuthToken) error {
	_, err := r.query().ExecContext(ctx, `
		INSERT INTO oauth_tokens (provider, account, access_token, refresh_token,
			scope, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (provider, account) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`,
		token.Provider, token.Account, token.AccessToken,
		nullString(token.RefreshToken), nullString(token.Scope),
		nullTime(token.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to upsert token for %s/%s: %w", token.Provider, token.Account, err)
	}
	return nil
}

func (r *postgresTokenRepo) Get(ctx context.Context, provider, account string) (*core.OAuthToken, error) {
	var t core.OAuthToken
	var refresh, scope sql.NullString
	var expires sql.NullTime
	err := r.query().QueryRowContext(ctx, `
		SELECT provider, account, access_token, refresh_token, scope, expires_at
		FROM oauth_tokens WHERE provider = $1 AND account = $2`,
		provider, account,
	).Scan(&t.Provider, &t.Account, &t.AccessToken, &refresh, &scope, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token for %s/%s: %w", provider, account, err)
	}
	t.RefreshToken = refresh.String
	t.Scope = scope.String
	if expires.Valid {
		ts := expires.Time
		t.ExpiresAt = &ts
	}
	return &t, nil
}
