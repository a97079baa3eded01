package stores

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/oarkflow/squealx"
)

//go:embed sql_migrations.sql
var migrationsSQL string

// Migrate creates the sessions and audit_log tables when missing. Statements
// are idempotent and executed one at a time.
func Migrate(ctx context.Context, db *squealx.DB) error {
	for _, stmt := range strings.Split(migrationsSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	return nil
}
