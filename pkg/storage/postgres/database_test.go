package postgres_test

import (
	"os"
	"testing"

	"quotecore/config"
	"quotecore/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	if os.Getenv("LEDGER_TEST_DSN") == "" {
		t.Skip("LEDGER_TEST_DSN not set")
	}
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: os.Getenv("PGPASSWORD"),
		DBName:   "quotecore_create_test",
		SSLMode:  "disable",
	}

	require.NoError(t, postgres.CreateDatabase(cfg))
	// second call finds it and does nothing
	require.NoError(t, postgres.CreateDatabase(cfg))
}
