package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidReference    = errors.New("invalid reference")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotArchived         = errors.New("document is not archived")
	ErrAlreadyDecided      = errors.New("approval already decided")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

// translate maps driver errors onto the package's sentinel errors so callers
// never inspect Postgres codes. Unknown errors pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrInvalidReference
		case pgInvalidText:
			// Malformed UUIDs can never match a row.
			return ErrNotFound
		}
	}
	return err
}
