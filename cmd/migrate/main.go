package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ignite/wa-outreach/internal/config"
	"github.com/ignite/wa-outreach/internal/pkg/logger"
	"github.com/ignite/wa-outreach/internal/repository/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if listOnly {
		rows, err := db.QueryContext(ctx, `SELECT tablename FROM pg_tables
			WHERE schemaname = 'public' AND tablename LIKE 'comms\_%' ORDER BY tablename`)
		if err != nil {
			logger.Error("list tables", "error", err)
			os.Exit(1)
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				logger.Error("scan table name", "error", err)
				os.Exit(1)
			}
			fmt.Println(" ", t)
			n++
		}
		fmt.Printf("Total: %d tables\n", n)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("read migrations dir", "dir", dir, "error", err)
		os.Exit(1)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read migration", "file", path, "error", err)
			os.Exit(1)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			logger.Error("begin migration", "file", f, "error", err)
			errCount++
			continue
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			tx.Rollback()
			logger.Error("migration failed", "file", f, "error", err)
			errCount++
			continue
		}
		if err := tx.Commit(); err != nil {
			logger.Error("commit migration", "file", f, "error", err)
			errCount++
			continue
		}
		logger.Info("migration applied", "file", f)
		okCount++
	}
	logger.Info("migrations complete", "ok", okCount, "errors", errCount)
	if errCount > 0 {
		os.Exit(1)
	}
}
