package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	driverErr := errors.New("connection reset by peer")

	tests := []struct {
		name    string
		err     error
		want    error
		message string
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound, "tenant acme"},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound, "tenant acme"},
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key value"}, ErrConflict, "duplicate key value"},
		{"foreign key violation", &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}, ErrConflict, "violates foreign key constraint"},
		{"other pg error", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, nil, "relation does not exist"},
		{"driver error", driverErr, driverErr, "connection reset by peer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("tenant acme", tt.err)

			require.Error(t, err)
			assert.Contains(t, err.Error(), "tenant acme")
			assert.Contains(t, err.Error(), tt.message)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				assert.NotErrorIs(t, err, ErrNotFound)
				assert.NotErrorIs(t, err, ErrConflict)
			}
		})
	}
}

func TestMapErrorNil(t *testing.T) {
	assert.NoError(t, mapError("tenant acme", nil))
}

func TestOpenPostgresRejectsBadConfig(t *testing.T) {
	_, err := OpenPostgres(context.Background(), PostgresConfig{})
	assert.ErrorContains(t, err, "url is required")

	_, err = OpenPostgres(context.Background(), PostgresConfig{URL: "postgres://localhost/o008?pool_max_conns=many"})
	assert.ErrorContains(t, err, "parse postgres config")
}
