package dberr

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMap(t *testing.T) {
	assert.Nil(t, Map("op", nil))
	assert.ErrorIs(t, Map("get", gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, Map("insert", &pgconn.PgError{Code: "23505"}), ErrConflict)
	assert.ErrorIs(t, Map("insert", &pgconn.PgError{Code: "40P01"}), ErrRetryable)
	assert.ErrorIs(t, Map("insert", errors.New("UNIQUE constraint failed: three_d_result.external_job_id")), ErrConflict)
	assert.ErrorIs(t, Map("q", context.DeadlineExceeded), ErrRetryable)

	plain := errors.New("boom")
	err := Map("q", plain)
	assert.ErrorIs(t, err, plain)
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "q: boom", err.Error())

	// already classified errors pass through untouched
	once := Map("a", gorm.ErrRecordNotFound)
	assert.Equal(t, once, Map("b", once))
}
