// Package sqlite provides a SQLite-backed implementation of the storage
// interfaces. The schema is created on open; one-shot code consumption and
// refresh rotation use transactions with conditional writes so the atomicity
// guarantees hold across connections.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bentlogic/oauth2-provider/security"
	"github.com/bentlogic/oauth2-provider/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS oauth_clients (
	client_id          TEXT PRIMARY KEY,
	client_secret_hash TEXT NOT NULL,
	revoked            INTEGER NOT NULL DEFAULT 0,
	revoked_at         INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS oauth_redirect_uris (
	client_id TEXT NOT NULL REFERENCES oauth_clients(client_id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	uri       TEXT NOT NULL,
	PRIMARY KEY (client_id, position)
);

CREATE TABLE IF NOT EXISTS oauth_codes (
	code         TEXT PRIMARY KEY,
	client_id    TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	redirect_uri TEXT NOT NULL,
	expires_in   INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	used         INTEGER NOT NULL DEFAULT 0,
	revoked      INTEGER NOT NULL DEFAULT 0,
	revoked_at   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	access_token  TEXT PRIMARY KEY,
	refresh_token TEXT NOT NULL UNIQUE,
	user_id       TEXT NOT NULL,
	client_id     TEXT NOT NULL,
	expires_in    INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	revoked       INTEGER NOT NULL DEFAULT 0,
	revoked_at    INTEGER NOT NULL DEFAULT 0
);
`

// Store is a SQLite-backed implementation of ClientStore, FlowStore and
// TokenStore.
type Store struct {
	db *sql.DB
}

var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.FlowStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New opens (or creates) the database at the given DSN and ensures the
// schema exists.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveClient stores a registered client and its redirect URIs, replacing any
// existing registration under the same client ID.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO oauth_clients (client_id, client_secret_hash, revoked, revoked_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET
		   client_secret_hash = excluded.client_secret_hash,
		   revoked = excluded.revoked,
		   revoked_at = excluded.revoked_at`,
		client.ClientID, client.ClientSecretHash, boolToInt(client.Revoked),
		timeToUnix(client.RevokedAt), timeToUnix(client.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM oauth_redirect_uris WHERE client_id = ?`, client.ClientID,
	); err != nil {
		return fmt.Errorf("failed to clear redirect URIs: %w", err)
	}
	for i, uri := range client.RedirectURIs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO oauth_redirect_uris (client_id, position, uri) VALUES (?, ?, ?)`,
			client.ClientID, i, uri,
		); err != nil {
			return fmt.Errorf("failed to save redirect URI: %w", err)
		}
	}

	return tx.Commit()
}

// GetClient retrieves a client and its redirect URIs in registration order.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client := &storage.Client{ClientID: clientID}

	var revoked int
	var revokedAt, createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT client_secret_hash, revoked, revoked_at, created_at
		 FROM oauth_clients WHERE client_id = ?`, clientID,
	).Scan(&client.ClientSecretHash, &revoked, &revokedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query client: %w", err)
	}
	client.Revoked = revoked != 0
	client.RevokedAt = unixToTime(revokedAt)
	client.CreatedAt = unixToTime(createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT uri FROM oauth_redirect_uris WHERE client_id = ? ORDER BY position`, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query redirect URIs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("failed to scan redirect URI: %w", err)
		}
		client.RedirectURIs = append(client.RedirectURIs, uri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read redirect URIs: %w", err)
	}

	return client, nil
}

// ValidateClientSecret verifies a client secret against the stored bcrypt
// hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT client_secret_hash FROM oauth_clients WHERE client_id = ?`, clientID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query client: %w", err)
	}

	if err := security.CompareClientSecret(hash, clientSecret); err != nil {
		return storage.ErrInvalidClientSecret
	}
	return nil
}

// SaveAuthorizationCode persists a newly issued code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_codes (code, client_id, user_id, redirect_uri, expires_in, created_at, used, revoked, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI,
		code.ExpiresIn, timeToUnix(code.CreatedAt),
		boolToInt(code.Used), boolToInt(code.Revoked), timeToUnix(code.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode retrieves a code by value.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	return s.queryCode(ctx, s.db, code)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) queryCode(ctx context.Context, q querier, code string) (*storage.AuthorizationCode, error) {
	stored := &storage.AuthorizationCode{Code: code}

	var used, revoked int
	var createdAt, revokedAt int64
	err := q.QueryRowContext(ctx,
		`SELECT client_id, user_id, redirect_uri, expires_in, created_at, used, revoked, revoked_at
		 FROM oauth_codes WHERE code = ?`, code,
	).Scan(&stored.ClientID, &stored.UserID, &stored.RedirectURI,
		&stored.ExpiresIn, &createdAt, &used, &revoked, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query authorization code: %w", err)
	}

	stored.CreatedAt = unixToTime(createdAt)
	stored.Used = used != 0
	stored.Revoked = revoked != 0
	stored.RevokedAt = unixToTime(revokedAt)
	return stored, nil
}

// ConsumeAuthorizationCode atomically marks a code used and returns it. The
// conditional UPDATE succeeds for exactly one of any set of concurrent
// exchanges.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE oauth_codes SET used = 1 WHERE code = ? AND used = 0`, code,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the code does not exist or it was already used.
		if _, err := s.queryCode(ctx, tx, code); err != nil {
			return nil, err
		}
		return nil, storage.ErrCodeConsumed
	}

	stored, err := s.queryCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return stored, nil
}

// DeleteAuthorizationCode removes a code.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM oauth_codes WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CleanupExpiredCodes removes codes that are consumed, revoked or past their
// lifetime, and returns how many were removed.
func (s *Store) CleanupExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_codes WHERE used = 1 OR revoked = 1 OR ? - created_at >= expires_in`,
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up authorization codes: %w", err)
	}
	return res.RowsAffected()
}

// SaveToken persists a newly issued token pair.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (access_token, refresh_token, user_id, client_id, expires_in, created_at, revoked, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.AccessToken, token.RefreshToken, token.UserID, token.ClientID,
		token.ExpiresIn, timeToUnix(token.CreatedAt),
		boolToInt(token.Revoked), timeToUnix(token.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetTokenByAccess retrieves a token record by access-token value.
func (s *Store) GetTokenByAccess(ctx context.Context, accessToken string) (*storage.Token, error) {
	return s.queryToken(ctx, `access_token`, accessToken)
}

// GetTokenByRefresh retrieves a token record by refresh-token value.
func (s *Store) GetTokenByRefresh(ctx context.Context, refreshToken string) (*storage.Token, error) {
	return s.queryToken(ctx, `refresh_token`, refreshToken)
}

func (s *Store) queryToken(ctx context.Context, column, value string) (*storage.Token, error) {
	token := &storage.Token{}

	var revoked int
	var createdAt, revokedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, user_id, client_id, expires_in, created_at, revoked, revoked_at
		 FROM oauth_tokens WHERE `+column+` = ?`, value,
	).Scan(&token.AccessToken, &token.RefreshToken, &token.UserID, &token.ClientID,
		&token.ExpiresIn, &createdAt, &revoked, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	token.CreatedAt = unixToTime(createdAt)
	token.Revoked = revoked != 0
	token.RevokedAt = unixToTime(revokedAt)
	return token, nil
}

// UpdateToken persists changes to an existing record.
func (s *Store) UpdateToken(ctx context.Context, token *storage.Token) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE oauth_tokens
		 SET refresh_token = ?, user_id = ?, client_id = ?, expires_in = ?, created_at = ?, revoked = ?, revoked_at = ?
		 WHERE access_token = ?`,
		token.RefreshToken, token.UserID, token.ClientID, token.ExpiresIn,
		timeToUnix(token.CreatedAt), boolToInt(token.Revoked), timeToUnix(token.RevokedAt),
		token.AccessToken,
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RotateToken atomically replaces the record identified by refreshToken with
// next. The conditional DELETE succeeds for exactly one of any set of
// concurrent refreshes of the same token.
func (s *Store) RotateToken(ctx context.Context, refreshToken string, next *storage.Token) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE refresh_token = ?`, refreshToken,
	)
	if err != nil {
		return fmt.Errorf("failed to rotate token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO oauth_tokens (access_token, refresh_token, user_id, client_id, expires_in, created_at, revoked, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		next.AccessToken, next.RefreshToken, next.UserID, next.ClientID,
		next.ExpiresIn, timeToUnix(next.CreatedAt),
		boolToInt(next.Revoked), timeToUnix(next.RevokedAt),
	); err != nil {
		return fmt.Errorf("failed to insert rotated token: %w", err)
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixToTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
