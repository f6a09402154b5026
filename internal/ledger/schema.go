package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the ledger tables and append-only triggers. Intended
// for integration tests and dev bootstrap; production deployments run the
// same DDL through their migration tooling as the schema owner.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}
