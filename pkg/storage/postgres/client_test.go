package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"quotecore/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// testClient connects to LEDGER_TEST_DSN, e.g.
// LEDGER_TEST_DSN="host=localhost port=5432 user=postgres password=yourpw dbname=quotecore_test sslmode=disable"
func testClient(t *testing.T) *postgres.PostgresClient {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DSN not set")
	}
	client, err := postgres.NewClient(dsn)
	require.NoError(t, err)
	require.NoError(t, client.AutoMigrateLedger())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=127.0.0.1 port=1 user=fail password=fail dbname=fail sslmode=disable connect_timeout=1"

	_, err := postgres.NewClient(invalidDSN)
	require.Error(t, err)
}

// go test -v --run ^TestPostgresClientHealthy$
func TestPostgresClientHealthy(t *testing.T) {
	client := testClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.True(t, client.IsHealthy(ctx))
}
