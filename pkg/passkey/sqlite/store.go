// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package sqlite provides a SQLite-backed credential repository.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
  id               TEXT PRIMARY KEY,
  credential_id    TEXT NOT NULL UNIQUE,
  user_id          TEXT NOT NULL,
  public_key       BLOB NOT NULL,
  attestation_type TEXT NOT NULL DEFAULT '',
  transports       TEXT NOT NULL DEFAULT '',
  user_present     INTEGER NOT NULL DEFAULT 0,
  user_verified    INTEGER NOT NULL DEFAULT 0,
  backup_eligible  INTEGER NOT NULL DEFAULT 0,
  backup_state     INTEGER NOT NULL DEFAULT 0,
  aaguid           BLOB,
  sign_count       INTEGER NOT NULL DEFAULT 0,
  label            TEXT NOT NULL DEFAULT '',
  created_at       INTEGER NOT NULL,
  last_used_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_credentials_user_id ON credentials(user_id);
`

// Store persists WebAuthn credentials in SQLite. Credential and user
// handles are base64url-encoded into TEXT key columns; timestamps are
// stored as UTC millisecond integers.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func encodeKey(value []byte) string {
	return base64.RawURLEncoding.EncodeToString(value)
}

func decodeKey(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(value)
}

// Open opens a SQLite credential store at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping verifies the database connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// Insert stores a new credential.
func (s *Store) Insert(ctx context.Context, cred *passkey.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if cred == nil {
		return fmt.Errorf("credential is required")
	}
	if len(cred.CredentialID) == 0 {
		return fmt.Errorf("credential id is required")
	}
	if len(cred.UserID) == 0 {
		return fmt.Errorf("user id is required")
	}

	lastUsed := sql.NullInt64{}
	if !cred.LastUsedAt.IsZero() {
		lastUsed = sql.NullInt64{Int64: toMillis(cred.LastUsedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO credentials (
		   id,
		   credential_id,
		   user_id,
		   public_key,
		   attestation_type,
		   transports,
		   user_present,
		   user_verified,
		   backup_eligible,
		   backup_state,
		   aaguid,
		   sign_count,
		   label,
		   created_at,
		   last_used_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID,
		encodeKey(cred.CredentialID),
		encodeKey(cred.UserID),
		cred.PublicKey,
		cred.AttestationType,
		joinTransports(cred.Transports),
		cred.Flags.UserPresent,
		cred.Flags.UserVerified,
		cred.Flags.BackupEligible,
		cred.Flags.BackupState,
		cred.AAGUID,
		cred.SignCount,
		cred.Label,
		toMillis(cred.CreatedAt),
		lastUsed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return passkey.ErrDuplicateCredential
		}
		return passkey.WrapRepositoryError("insert credential", err)
	}
	return nil
}

// FindByCredentialID retrieves a credential by its authenticator-assigned ID.
func (s *Store) FindByCredentialID(ctx context.Context, credentialID []byte) (*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		selectColumns+` FROM credentials WHERE credential_id = ?`,
		encodeKey(credentialID),
	)

	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrCredentialNotFound
		}
		return nil, passkey.WrapRepositoryError("find credential", err)
	}
	return cred, nil
}

// ListByUser retrieves all credentials bound to a user, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID []byte) ([]*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		selectColumns+` FROM credentials WHERE user_id = ? ORDER BY created_at ASC`,
		encodeKey(userID),
	)
	if err != nil {
		return nil, passkey.WrapRepositoryError("list credentials", err)
	}
	defer rows.Close()

	var creds []*passkey.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, passkey.WrapRepositoryError("scan credential", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, passkey.WrapRepositoryError("list credentials", err)
	}
	return creds, nil
}

// UpdateCounterAndLastUsed commits a new signature counter and usage timestamp.
func (s *Store) UpdateCounterAndLastUsed(ctx context.Context, credentialID []byte, signCount uint32, lastUsedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE credentials SET sign_count = ?, last_used_at = ? WHERE credential_id = ?`,
		signCount,
		toMillis(lastUsedAt),
		encodeKey(credentialID),
	)
	if err != nil {
		return passkey.WrapRepositoryError("update credential", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return passkey.WrapRepositoryError("update credential", err)
	}
	if affected == 0 {
		return passkey.ErrCredentialNotFound
	}
	return nil
}

// Delete removes a credential by its authenticator-assigned ID.
func (s *Store) Delete(ctx context.Context, credentialID []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM credentials WHERE credential_id = ?`,
		encodeKey(credentialID),
	)
	if err != nil {
		return passkey.WrapRepositoryError("delete credential", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return passkey.WrapRepositoryError("delete credential", err)
	}
	if affected == 0 {
		return passkey.ErrCredentialNotFound
	}
	return nil
}

// Count returns the total number of stored credentials.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&count)
	if err != nil {
		return 0, passkey.WrapRepositoryError("count credentials", err)
	}
	return count, nil
}

const selectColumns = `SELECT
  id,
  credential_id,
  user_id,
  public_key,
  attestation_type,
  transports,
  user_present,
  user_verified,
  backup_eligible,
  backup_state,
  aaguid,
  sign_count,
  label,
  created_at,
  last_used_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*passkey.Credential, error) {
	var (
		cred         passkey.Credential
		credentialID string
		userID       string
		transports   string
		createdAt    int64
		lastUsedAt   sql.NullInt64
	)

	err := row.Scan(
		&cred.ID,
		&credentialID,
		&userID,
		&cred.PublicKey,
		&cred.AttestationType,
		&transports,
		&cred.Flags.UserPresent,
		&cred.Flags.UserVerified,
		&cred.Flags.BackupEligible,
		&cred.Flags.BackupState,
		&cred.AAGUID,
		&cred.SignCount,
		&cred.Label,
		&createdAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	if cred.CredentialID, err = decodeKey(credentialID); err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}
	if cred.UserID, err = decodeKey(userID); err != nil {
		return nil, fmt.Errorf("decode user id: %w", err)
	}
	cred.Transports = splitTransports(transports)
	cred.CreatedAt = fromMillis(createdAt)
	if lastUsedAt.Valid {
		cred.LastUsedAt = fromMillis(lastUsedAt.Int64)
	}

	return &cred, nil
}

func joinTransports(transports []protocol.AuthenticatorTransport) string {
	if len(transports) == 0 {
		return ""
	}
	parts := make([]string, len(transports))
	for i, transport := range transports {
		parts[i] = string(transport)
	}
	return strings.Join(parts, ",")
}

func splitTransports(value string) []protocol.AuthenticatorTransport {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	transports := make([]protocol.AuthenticatorTransport, len(parts))
	for i, part := range parts {
		transports[i] = protocol.AuthenticatorTransport(part)
	}
	return transports
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ passkey.CredentialRepository = (*Store)(nil)
