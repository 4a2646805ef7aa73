package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
)

// migrationLockID is an arbitrary advisory lock key for schema changes
const migrationLockID int64 = 0x68617276 // "harv"

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate applies the embedded schema files in name order.
// Every statement is idempotent (IF NOT EXISTS), so Migrate is safe on every start.
func (db *DB) Migrate(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	// api, worker and scheduler may start together; one applies, the rest wait
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	for _, name := range names {
		sql, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}

	return nil
}
