package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMapError(t *testing.T) {
	assert.Nil(t, MapError(nil))
	assert.ErrorIs(t, MapError(mongo.ErrNoDocuments), ErrNotFound)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, MapError(dup), ErrDuplicate)

	other := errors.New("other")
	assert.Equal(t, other, MapError(other))
}

func TestMapSQLError(t *testing.T) {
	assert.ErrorIs(t, MapSQLError(sql.ErrNoRows), ErrNotFound)

	wrapped := fmt.Errorf("insert alert: %w", &pq.Error{Code: "23505"})
	assert.True(t, IsUniqueViolation(wrapped))
	assert.ErrorIs(t, MapSQLError(wrapped), ErrDuplicate)

	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "adpulse"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=adpulse sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
