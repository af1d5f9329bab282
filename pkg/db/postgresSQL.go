package db

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/config"
	"atelier/pkg/logger"
)

// Connect opens the pool described by cfg and applies the schema unless disabled.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("connected to PostgreSQL", map[string]any{"max_conns": cfg.DBMaxConns})

	if cfg.ApplySchemaOnStart {
		schemaCtx, cancelSchema := context.WithTimeout(ctx, 30*time.Second)
		defer cancelSchema()
		if err := ApplySchema(schemaCtx, pool, cfg.SchemaPath); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return pool, nil
}

// ApplySchema reads the SQL schema file and executes it against the provided pool.
// Statements in the file must be idempotent.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, schemaPath string) error {
	if schemaPath == "" {
		schemaPath = "pkg/db/schema.sql"
	}

	bytes, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}

	sql := strings.TrimSpace(string(bytes))
	if sql == "" {
		return fmt.Errorf("schema file is empty: %s", schemaPath)
	}

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	logger.Info("schema applied", map[string]any{"path": schemaPath})
	return nil
}
