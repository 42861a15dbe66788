// Package repository provides the PostgreSQL-backed persistence layer for
// the message pipeline's domain types (spec section 3 / 6.4), grounded on
// the teacher's connection-pooled *sql.DB + promauto metrics shape.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	repoOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_operations_total",
			Help: "Total number of repository operations",
		},
		[]string{"table", "operation", "status"},
	)

	repoOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_operation_duration_seconds",
			Help:    "Duration of repository operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "operation"},
	)
)

const defaultQueryTimeout = 5 * time.Second // spec section 5: SQL calls default to 5s

// DatabaseConfig configures the pooled *sql.DB, mirroring config.DatabaseConfig.
type DatabaseConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Configure applies pool settings to an already-opened *sql.DB.
func Configure(db *sql.DB, cfg DatabaseConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
}

func observe(table, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	repoOps.WithLabelValues(table, operation, status).Inc()
}

func timer(table, operation string) func() {
	t := prometheus.NewTimer(repoOpDuration.WithLabelValues(table, operation))
	return func() { t.ObserveDuration() }
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

func wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
