package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// OpenFunc opens a database handle for a DSN. The collector owns and closes it.
type OpenFunc func(dsn string) (*sql.DB, error)

// Compile-time check: Collector implements domain.UsageCollector.
var _ domain.UsageCollector = (*Collector)(nil)

// Collector counts billable entities in tenant MySQL databases. Each call
// opens its own single-connection handle and closes it before returning.
type Collector struct {
	open    OpenFunc
	timeout time.Duration
	logger  *slog.Logger
}

// NewCollector creates a collector. A nil open uses database/sql with the
// mysql driver; timeout bounds connecting and the whole snapshot.
func NewCollector(open OpenFunc, timeout time.Duration, logger *slog.Logger) *Collector {
	if open == nil {
		open = func(dsn string) (*sql.DB, error) { return sql.Open("mysql", dsn) }
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{open: open, timeout: timeout, logger: logger}
}

// DSN builds the driver DSN for a tenant database.
func DSN(p domain.DBParams, timeout time.Duration) string {
	cfg := gomysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	port := p.Port
	if port == 0 {
		port = domain.DefaultDBPort
	}
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(port))
	cfg.DBName = p.Database
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	cfg.WriteTimeout = timeout
	return cfg.FormatDSN()
}

// Collect takes a usage snapshot of the tenant's database.
func (c *Collector) Collect(ctx context.Context, tenant domain.Tenant) (domain.UsageSnapshot, error) {
	if missing := tenant.MissingFields(); len(missing) > 0 {
		return domain.UsageSnapshot{}, &domain.SoftDBError{
			Code: CodeMissingParams,
			Err:  fmt.Errorf("missing %s", strings.Join(missing, ", ")),
		}
	}

	db, err := c.open(DSN(tenant.DB, c.timeout))
	if err != nil {
		return domain.UsageSnapshot{}, soften(err, CodeMissingParams)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return domain.UsageSnapshot{}, soften(err, CodeReset)
	}

	var snap domain.UsageSnapshot

	clients, err := countRows(ctx, db, tenant.Tables.Clients)
	if err != nil {
		return domain.UsageSnapshot{}, soften(fmt.Errorf("counting %s: %w", tenant.Tables.Clients, err), "")
	}
	snap.Clients = clients

	admins, providers, err := countProviderTypes(ctx, db, tenant.Tables.Providers)
	if err != nil {
		c.logger.DebugContext(ctx, "provider breakdown unavailable",
			"tenant_id", tenant.ID, "table", tenant.Tables.Providers, "error", err)
	} else {
		snap.Admins = admins
		snap.Providers = providers
	}

	users, err := countRows(ctx, db, tenant.Tables.Users)
	if err != nil {
		c.logger.DebugContext(ctx, "users count unavailable, deriving from roles",
			"tenant_id", tenant.ID, "table", tenant.Tables.Users, "error", err)
		snap.Users = snap.RoleSum()
		snap.UsersDerived = true
	} else {
		snap.Users = users
	}

	return snap, nil
}

func countRows(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return 0, err
	}
	return int(max(n, 0)), nil
}

// countProviderTypes groups the providers table by its type column. Types
// containing "admin" count as admins, types containing "provider" as providers.
func countProviderTypes(ctx context.Context, db *sql.DB, table string) (admins, providers int, err error) {
	rows, err := db.QueryContext(ctx,
		"SELECT `type`, COUNT(*) FROM "+quoteIdent(table)+" GROUP BY `type`")
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind sql.NullString
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return 0, 0, err
		}
		if n < 0 {
			continue
		}
		switch k := strings.ToLower(strings.TrimSpace(kind.String)); {
		case strings.Contains(k, "admin"):
			admins += int(n)
		case strings.Contains(k, "provider"):
			providers += int(n)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	return admins, providers, nil
}

// quoteIdent backtick-quotes a table name. Names are validated by the
// registry; embedded backticks are doubled regardless.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
