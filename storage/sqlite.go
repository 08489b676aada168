package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"casdoorlink/core"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite/schema.sql
var sqliteSchema string

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	_, err := r.db.Exec(sqliteSchema)
	return err
}

func (r *SQLiteRepository) FindBinding(ctx context.Context, chatUserID string) (*core.BindingRecord, error) {
	query := `
		SELECT id, casdoor_username, access_token, refresh_token, bind_time
		FROM casdoor_bindings
		WHERE id = ?
	`

	var record core.BindingRecord
	var bindTime int64

	err := r.db.QueryRowContext(ctx, query, chatUserID).Scan(
		&record.ID,
		&record.ExternalUsername,
		&record.AccessToken,
		&record.RefreshToken,
		&bindTime,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record.BoundAt = time.Unix(bindTime, 0)

	return &record, nil
}

// SaveBinding upserts in one statement so a chat user never gets two rows.
func (r *SQLiteRepository) SaveBinding(ctx context.Context, record *core.BindingRecord) error {
	query := `
		INSERT INTO casdoor_bindings (id, casdoor_username, access_token, refresh_token, bind_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			casdoor_username = excluded.casdoor_username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			bind_time = excluded.bind_time
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.ExternalUsername,
		record.AccessToken,
		record.RefreshToken,
		record.BoundAt.Unix(),
	)

	return err
}

func (r *SQLiteRepository) CountBindings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM casdoor_bindings`).Scan(&count)
	return count, err
}
