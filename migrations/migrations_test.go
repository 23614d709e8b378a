package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Equal(t, []string{
		"0001_warehouses_products.sql",
		"0002_stock_ledger.sql",
		"0003_stock_counts.sql",
		"0004_serial_numbers.sql",
	}, names)
}

func TestSchemaCoversRepositoryTables(t *testing.T) {
	var schema strings.Builder
	names, err := Names()
	require.NoError(t, err)
	for _, name := range names {
		body, err := files.ReadFile(name)
		require.NoError(t, err)
		schema.Write(body)
	}
	for _, table := range []string{
		"warehouses", "products", "stock_items", "stock_movements", "idempotency_keys",
		"audit_logs", "stock_counts", "stock_count_items", "serial_numbers",
	} {
		require.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	require.Contains(t, schema.String(), "CREATE SEQUENCE IF NOT EXISTS stock_count_number_seq")
}
