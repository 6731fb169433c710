package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"netwatch/internal/config"
	"netwatch/internal/util"
)

// PostgresClient wraps a pgx connection pool for the relational store
// (users, nodes, alerts).
type PostgresClient struct {
	Pool   *pgxpool.Pool
	config *config.PostgresConfig
}

func NewPostgresClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	pgConfig := cfg.Postgres

	poolConfig, err := pgxpool.ParseConfig(pgConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse Postgres URL: %w", err)
	}

	poolConfig.MaxConns = int32(pgConfig.MaxConns)
	poolConfig.MinConns = int32(pgConfig.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create Postgres connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to Postgres: %w", err)
	}

	util.Info("Postgres client initialized",
		zap.Int("max_conns", pgConfig.MaxConns),
		zap.Int("min_conns", pgConfig.MinConns),
	)

	return &PostgresClient{
		Pool:   pool,
		config: &pgConfig,
	}, nil
}

// HealthCheck verifies Postgres connectivity
func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

func (p *PostgresClient) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		util.Info("Postgres connection pool closed")
	}
}
