package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// DefaultTable is the shared pricing table name.
const DefaultTable = "tenant_pricing"

// timeFormat is fixed width so updated_at sorts lexically down to the microsecond.
const timeFormat = "2006-01-02T15:04:05.000000Z"

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Compile-time check: Repository implements domain.PricingStore.
var _ domain.PricingStore = (*Repository)(nil)

// Repository reads and records shared per-tenant rates. It works on any
// database/sql handle that accepts '?' placeholders and backtick-quoted
// identifiers (MySQL in production, the local SQLite store otherwise).
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository creates a repository over table. An empty table uses DefaultTable.
func NewRepository(db *sql.DB, table string) (*Repository, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid pricing table name %q", table)
	}
	return &Repository{db: db, table: table}, nil
}

// LatestRate returns the most recently updated rate for key; rows stamped in
// the same instant fall back to insertion order. Rows whose rate
// is not a finite non-negative number are treated as absent.
func (r *Repository) LatestRate(ctx context.Context, key string) (float64, bool, error) {
	var raw sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT rate FROM `"+r.table+"` WHERE company_key = ? ORDER BY updated_at DESC, id DESC LIMIT 1",
		key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("querying shared rate: %w", err)
	}

	if !raw.Valid {
		return 0, false, nil
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(raw.String), 64)
	if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0, false, nil
	}
	return rate, true, nil
}

// Record appends a new rate row for key.
func (r *Repository) Record(ctx context.Context, key string, rate float64, at time.Time) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return &domain.InvalidRateError{Reason: "rate must be a finite number >= 0"}
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO `"+r.table+"` (company_key, rate, updated_at) VALUES (?, ?, ?)",
		key, rate, at.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("recording shared rate: %w", err)
	}
	return nil
}
