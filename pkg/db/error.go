package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
	pgDiskFull        = "53100"
	pgOutOfMemory     = "53200"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || pgCode(err) == pgUniqueViolation {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Error 1062") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsMissingTableErr reports whether err comes from reading a table that does
// not exist yet, which happens when an older database is opened before its
// upgrade finished.
func IsMissingTableErr(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgUndefinedTable {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "Error 1146") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}

// IsQuotaErr reports whether err means the storage medium is out of space.
func IsQuotaErr(err error) bool {
	if err == nil {
		return false
	}
	switch pgCode(err) {
	case pgDiskFull, pgOutOfMemory:
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "no space left on device") ||
		strings.Contains(msg, "error 1114")
}
