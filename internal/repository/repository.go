// Пакет repository хранит папки и записи файлов в PostgreSQL.
// Запросы пишутся на SQL и выполняются через pgx.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound — строки с таким ID нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — дубликат ID или ссылка на несуществующую папку.
	ErrConflict = errors.New("конфликт данных")
)

// Коды SQLSTATE, которые транслируются в ошибки пакета.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	// invalid_text_representation: ID не разбирается как UUID
	sqlStateInvalidText         = "22P02"
)

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return sqlState(err) == sqlStateUniqueViolation }

func isForeignKeyViolation(err error) bool { return sqlState(err) == sqlStateForeignKeyViolation }

// scanErr превращает pgx.ErrNoRows и не-UUID идентификатор в ErrNotFound,
// остальное оборачивает с op.
func scanErr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) || sqlState(err) == sqlStateInvalidText {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
