package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/grigta/adpulse/pkg/logger"
)

const (
	defaultPGConnectTimeout  = 5 * time.Second
	defaultPGMaxIdleConns    = 10
	defaultPGMaxOpenConns    = 50
	defaultPGConnMaxLifetime = 30 * time.Minute
	defaultPGConnMaxIdleTime = 5 * time.Minute

	pgUniqueViolation = "23505"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// NewPostgres opens a pooled connection and verifies it with a ping.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxIdleConns(defaultPGMaxIdleConns)
	db.SetMaxOpenConns(defaultPGMaxOpenConns)
	db.SetConnMaxLifetime(defaultPGConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultPGConnMaxIdleTime)

	connectCtx, cancel := context.WithTimeout(ctx, defaultPGConnectTimeout)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		logger.Field{Key: "host", Value: cfg.Host},
		logger.Field{Key: "database", Value: cfg.DBName},
	)

	return db, nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}

// MapSQLError converts database/sql and lib/pq errors into the package sentinels.
func MapSQLError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
