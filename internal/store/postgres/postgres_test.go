package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"goldprice/internal/store"
	"goldprice/internal/store/storetest"
)

// Runs only against a disposable database named by GOLDPRICE_TEST_DATABASE_URL.
// Tables are truncated before every test.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("GOLDPRICE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GOLDPRICE_TEST_DATABASE_URL not set")
	}

	_, err := Migrate(url)
	require.NoError(t, err)

	ctx := context.Background()
	suite.Run(t, &storetest.Suite{NewStore: func() store.Store {
		pool, err := Connect(ctx, url, 4)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, "TRUNCATE gold_prices, price_history RESTART IDENTITY")
		require.NoError(t, err)
		return New(pool)
	}})
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
