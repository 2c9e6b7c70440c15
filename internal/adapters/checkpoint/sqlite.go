// Package checkpoint persiste cursores de ingesta en SQLite.
//
// Cada par (job, key), típicamente fuente × wallet, guarda un cursor opaco
// ("offset=N", "block=N", "id=X"). Al reiniciar, la ingesta retoma desde el
// último cursor en vez de re-descargar todo el histórico.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polypnl/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    job        TEXT     NOT NULL,
    key        TEXT     NOT NULL,
    cursor     TEXT     NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (job, key)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(updated_at DESC);
`

// SQLiteStore implementa ports.CheckpointStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.CheckpointStore = (*SQLiteStore)(nil)

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get devuelve el cursor guardado para (job, key), o "" si nunca se guardó uno.
func (s *SQLiteStore) Get(ctx context.Context, job, key string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM checkpoints WHERE job = ? AND key = ?`, job, key,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("checkpoint.Get %s/%s: %w", job, key, err)
	}
	return cursor, nil
}

// Put guarda (o reemplaza) el cursor de (job, key).
func (s *SQLiteStore) Put(ctx context.Context, job, key, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (job, key, cursor, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(job, key) DO UPDATE SET
			cursor     = excluded.cursor,
			updated_at = excluded.updated_at
	`, job, key, cursor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("checkpoint.Put %s/%s: %w", job, key, err)
	}
	return nil
}

// Delete borra el cursor de (job, key). Borrar uno inexistente no es error:
// el efecto (ingesta desde cero) es el mismo.
func (s *SQLiteStore) Delete(ctx context.Context, job, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE job = ? AND key = ?`, job, key,
	); err != nil {
		return fmt.Errorf("checkpoint.Delete %s/%s: %w", job, key, err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
