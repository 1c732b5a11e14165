package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique constraint violation.
// Gorm translates some driver errors, but not for every dialect we open,
// so fall back to driver codes and message sniffing.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value violates unique constraint"): // postgres
		return true
	case strings.Contains(msg, "Error 1062"): // mysql
		return true
	case strings.Contains(msg, "UNIQUE constraint failed"): // sqlite
		return true
	case strings.Contains(msg, "Cannot insert duplicate key"): // sqlserver
		return true
	}
	return false
}

// IsNotFound reports whether err is gorm's empty result sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
