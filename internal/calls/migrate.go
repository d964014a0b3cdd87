package calls

import (
	"context"
	"database/sql"
	_ "embed"

	"telehealth-platform/pkg/utils"
)

//go:embed schema.sql
var schema string

// Migrate applies the call history and audit schema. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schema)
		return err
	})
}
