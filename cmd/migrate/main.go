package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nexamarket/internal/config"
	"nexamarket/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	applied, err := runMigrations(ctx, pool, migrationsDir())
	if err != nil {
		log.Fatalf("migrate failed: %v", err)
	}
	log.Printf("migrations up to date (%d newly applied)", applied)
}

func migrationsDir() string {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return "migrations"
}

func runMigrations(ctx context.Context, pool *db.Pool, dir string) (int, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return 0, err
	}

	files, err := listSQLFiles(dir)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, file := range files {
		ran, err := applyOnce(ctx, pool, file)
		if err != nil {
			return applied, fmt.Errorf("%s: %w", file, err)
		}
		if ran {
			log.Printf("applied %s", file)
			applied++
		}
	}
	return applied, nil
}

// applyOnce runs one migration file and records it, both inside a single
// transaction keyed by the file's base name so the dir can move between runs.
func applyOnce(ctx context.Context, pool *db.Pool, file string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	name := filepath.Base(file)
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, name,
	).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return false, err
	}
	if sqlText := strings.TrimSpace(string(data)); sqlText != "" {
		if _, err := tx.Exec(ctx, sqlText); err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (filename) VALUES ($1)`, name,
	); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
