package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// updateBuilder accumulates "column=$n" assignments. Column names always come
// from code, never from request data.
type updateBuilder struct {
	sets []string
	args []any
}

func (b *updateBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s=$%d", column, len(b.args)))
}

func (b *updateBuilder) empty() bool {
	return len(b.sets) == 0
}

// statement renders "UPDATE table SET ... WHERE id=$n RETURNING returning".
func (b *updateBuilder) statement(table, id, returning string) (string, []any) {
	args := append(append([]any{}, b.args...), id)
	query := fmt.Sprintf(
		`UPDATE %s SET %s, updated_at=NOW() WHERE id=$%d RETURNING %s`,
		table,
		strings.Join(b.sets, ", "),
		len(args),
		returning,
	)
	return query, args
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func jsonArg(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 || string(raw) == "null" {
		return fallback
	}
	return string(raw)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

func rawJSON(data []byte, fallback string) json.RawMessage {
	if len(data) == 0 {
		if fallback == "" {
			return nil
		}
		return json.RawMessage(fallback)
	}
	return json.RawMessage(data)
}

func ptrArg[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}
