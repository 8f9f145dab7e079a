package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: orders.id")))
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
}

func TestIsMissingTableErr(t *testing.T) {
	assert.True(t, IsMissingTableErr(errors.New("no such table: limit_changes")))
	assert.True(t, IsMissingTableErr(fmt.Errorf("find: %w", &pgconn.PgError{Code: "42P01"})))
	assert.True(t, IsMissingTableErr(&pq.Error{Code: "42P01"}))
	assert.True(t, IsMissingTableErr(errors.New("Error 1146: Table 'splitpay.limit_changes' doesn't exist")))
	assert.False(t, IsMissingTableErr(errors.New("boom")))
}

func TestIsQuotaErr(t *testing.T) {
	assert.True(t, IsQuotaErr(errors.New("database or disk is full")))
	assert.True(t, IsQuotaErr(&pgconn.PgError{Code: "53100"}))
	assert.True(t, IsQuotaErr(errors.New("write /data/mirror: no space left on device")))
	assert.False(t, IsQuotaErr(errors.New("boom")))
}

func TestDialect(t *testing.T) {
	for _, typ := range []string{"sqlite", "sqlite3", "postgres", "mysql"} {
		d, err := Dialect(Config{Type: typ, Path: "file::memory:"})
		assert.NoError(t, err, typ)
		assert.NotNil(t, d, typ)
	}

	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
