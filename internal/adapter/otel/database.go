package otel

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	_ "github.com/go-sql-driver/mysql" // Register MySQL driver.

	"github.com/neomorfeo/tenantbill/internal/adapter/sqlite"
)

// OpenSQLite opens the local state database with OpenTelemetry instrumentation,
// applies pragmas and migrations and registers pool metrics.
func OpenSQLite(dataSourceName string) (*sql.DB, error) {
	db, err := otelsql.Open("sqlite", dataSourceName,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}

	if err := sqlite.Prepare(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}

// OpenMySQLPool opens the shared, long-lived MySQL pool used for the pricing
// table. Connections are created lazily on first use.
func OpenMySQLPool(dsn string) (*sql.DB, error) {
	db, err := OpenMySQL(dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}

// OpenMySQL opens an instrumented MySQL handle. It matches mysql.OpenFunc so
// the per-tenant usage collector traces every query.
func OpenMySQL(dsn string) (*sql.DB, error) {
	db, err := otelsql.Open("mysql", dsn,
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	)
	if err != nil {
		return nil, fmt.Errorf("opening instrumented mysql handle: %w", err)
	}
	return db, nil
}
