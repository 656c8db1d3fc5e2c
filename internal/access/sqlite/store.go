// Package sqlite provides a SQLite-backed principal provider.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tessera-games/riftgate/internal/access"
	"github.com/tessera-games/riftgate/internal/access/sqlite/migrations"
	"github.com/tessera-games/riftgate/internal/actor"
	sqlitemigrate "github.com/tessera-games/riftgate/internal/platform/storage/sqlitemigrate"
)

// Store persists principal records in SQLite and implements access.Provider.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite principal store and applies embedded migrations.
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
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
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

// Resolve implements access.Provider. A missing row resolves to nil.
func (s *Store) Resolve(ctx context.Context, a *actor.Actor) (*access.Principal, error) {
	accountID := a.AccountID()
	if accountID == "" {
		return nil, nil
	}

	var rank int
	var permissionsJSON string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT rank, permissions FROM principals WHERE account_id = ?",
		accountID,
	).Scan(&rank, &permissionsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query principal %s: %w", accountID, err)
	}

	var permissions []string
	if err := json.Unmarshal([]byte(permissionsJSON), &permissions); err != nil {
		return nil, fmt.Errorf("decode permissions for %s: %w", accountID, err)
	}
	return &access.Principal{
		AccountID:   accountID,
		Rank:        rank,
		Permissions: permissions,
	}, nil
}

// Upsert writes a principal record, replacing any existing row.
func (s *Store) Upsert(ctx context.Context, principal access.Principal) error {
	if strings.TrimSpace(principal.AccountID) == "" {
		return fmt.Errorf("account id is required")
	}
	permissionsJSON, err := json.Marshal(principal.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO principals (account_id, rank, permissions, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(account_id) DO UPDATE SET
    rank = excluded.rank,
    permissions = excluded.permissions,
    updated_at = excluded.updated_at
`,
		principal.AccountID,
		principal.Rank,
		string(permissionsJSON),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert principal %s: %w", principal.AccountID, err)
	}
	return nil
}
