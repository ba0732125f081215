package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:generate go test -run TestSchemaMatchesMigrations -update .
//go:generate sqlc generate -f sqlc/sqlc.yaml

// Schema is the full schema produced by running every migration. Tests apply
// it directly to an in-memory database instead of running migrations, and
// sqlc reads it to type the queries.
//
//go:embed sqlc/schema.sql
var Schema string

const schemaHeader = `-- Generated from internal/database/migrations/files by DumpSchema.
-- Regenerate with: go generate ./internal/database

`

// DumpSchema returns the CREATE statements of a migrated database, tables
// before indexes, leaving out SQLite internals and the migration bookkeeping
// table.
func DumpSchema(db *sql.DB) (string, error) {
	rows, err := db.Query(`
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY CASE type WHEN 'table' THEN 1 ELSE 2 END, name
	`)
	if err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scanning schema: %w", err)
		}
		stmts = append(stmts, stmt)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}
	return schemaHeader + strings.Join(stmts, "\n\n") + "\n", nil
}
