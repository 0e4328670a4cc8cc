package data

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestErrorIsNoRows(t *testing.T) {
	assert.True(t, ErrorIsNoRows(gorm.ErrRecordNotFound))
	assert.True(t, ErrorIsNoRows(fmt.Errorf("wrapped: %w", sql.ErrNoRows)))
	assert.False(t, ErrorIsNoRows(errors.New("other")))
	assert.False(t, ErrorIsNoRows(nil))
}

func TestErrorIsDuplicate(t *testing.T) {
	assert.True(t, ErrorIsDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, ErrorIsDuplicate(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, ErrorIsDuplicate(errors.New("UNIQUE constraint failed: messages.content_hash")))
	assert.False(t, ErrorIsDuplicate(&pgconn.PgError{Code: "42P07"}))
	assert.False(t, ErrorIsDuplicate(nil))
}
