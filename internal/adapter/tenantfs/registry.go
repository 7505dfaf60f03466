package tenantfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// FileSuffix is the naming convention of tenant files: <tenant-id>.env.
const FileSuffix = ".env"

// Candidate keys, evaluated left to right. The first non-empty value wins.
var (
	// Explicit real name, legacy company-name fields, public app name.
	nameKeys = []string{"REAL_NAME", "COMPANY_NAME", "TENANT_NAME", "NEXT_PUBLIC_APP_NAME", "APP_NAME"}
	rateKeys = []string{"RATE_PER_USER", "USER_PRICE"}
	// Recipients use the first populated field only.
	emailKeys = []string{"EMAIL_FOR_INVOICE", "INVOICE_EMAIL", "BILLING_EMAIL"}
)

const (
	keyRateUpdatedAt = "RATE_UPDATED_AT"
	keyInvoiceEmail  = "EMAIL_FOR_INVOICE"
)

var (
	tenantIDPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)
)

// Compile-time checks.
var (
	_ domain.TenantRegistry = (*Registry)(nil)
	_ domain.RateWriter     = (*Registry)(nil)
)

// Registry reads tenant descriptors from a directory of tenant files.
// Every call rescans the directory; nothing is cached between calls.
type Registry struct {
	dir    string
	logger *slog.Logger

	// mu serialises file rewrites.
	mu sync.Mutex
}

// New creates a registry over dir.
func New(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{dir: dir, logger: logger}
}

// Dir returns the scanned directory.
func (r *Registry) Dir() string {
	return r.dir
}

// List returns every valid tenant in the directory. A missing or unreadable
// directory yields an empty list; files lacking mandatory fields are skipped.
func (r *Registry) List(ctx context.Context) ([]domain.Tenant, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.logger.WarnContext(ctx, "tenant directory unavailable", "dir", r.dir, "error", err)
		return []domain.Tenant{}, nil
	}

	tenants := make([]domain.Tenant, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := tenantIDFromFile(e.Name())
		if !ok {
			continue
		}
		tenant, err := r.load(id)
		if err != nil {
			r.logger.WarnContext(ctx, "tenant file excluded", "tenant_id", id, "error", err)
			continue
		}
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

// Get loads a single tenant by id.
func (r *Registry) Get(_ context.Context, id string) (domain.Tenant, error) {
	if !tenantIDPattern.MatchString(id) {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	tenant, err := r.load(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errIncomplete) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, err
	}
	return tenant, nil
}

var errIncomplete = errors.New("missing mandatory fields")

func (r *Registry) path(id string) string {
	return filepath.Join(r.dir, id+FileSuffix)
}

func (r *Registry) load(id string) (domain.Tenant, error) {
	path := r.path(id)
	f, err := os.Open(path)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("opening tenant file: %w", err)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("reading tenant file: %w", err)
	}

	tenant := r.build(id, values(lines))
	tenant.SourcePath = path

	if missing := tenant.MissingFields(); len(missing) > 0 {
		return domain.Tenant{}, fmt.Errorf("%w: %s", errIncomplete, strings.Join(missing, ", "))
	}
	return tenant, nil
}

func (r *Registry) build(id string, vals map[string]string) domain.Tenant {
	t := domain.Tenant{
		ID:               id,
		Name:             id,
		CompanyKey:       strings.TrimSpace(vals["COMPANY_KEY"]),
		ManagementStatus: strings.ToUpper(strings.TrimSpace(vals["MANAGEMENT_STATUS"])),
		DB: domain.DBParams{
			Host:     strings.TrimSpace(vals["DB_HOST"]),
			Port:     domain.DefaultDBPort,
			Database: strings.TrimSpace(vals["DB_DATABASE"]),
			User:     strings.TrimSpace(vals["DB_USERNAME"]),
			Password: vals["DB_PASSWORD"],
		},
		Tables: domain.DefaultTableNames(),
	}

	if name, ok := firstOf(vals, nameKeys...); ok {
		t.Name = name
	}

	if raw, ok := firstOf(vals, "DB_PORT"); ok {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 && port < 65536 {
			t.DB.Port = port
		} else {
			r.logger.Warn("ignoring invalid DB_PORT", "tenant_id", id, "value", raw)
		}
	}

	t.Tables.Users = r.tableName(id, vals, "USERS_TABLE", t.Tables.Users)
	t.Tables.Clients = r.tableName(id, vals, "CLIENTS_TABLE", t.Tables.Clients)
	t.Tables.Providers = r.tableName(id, vals, "PROVIDERS_TABLE", t.Tables.Providers)

	if raw, ok := firstOf(vals, "MANAGEMENT_DATE"); ok {
		if d, err := domain.ParseCivilDate(raw); err == nil {
			t.ManagementDate = &d
		} else {
			r.logger.Warn("ignoring invalid MANAGEMENT_DATE", "tenant_id", id, "value", raw)
		}
	}

	for _, k := range rateKeys {
		raw := strings.TrimSpace(vals[k])
		if raw == "" {
			continue
		}
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || !isFinite(rate) {
			r.logger.Warn("ignoring non-numeric rate", "tenant_id", id, "key", k, "value", raw)
			continue
		}
		t.RateOverride = &rate
		break
	}

	if raw, ok := firstOf(vals, emailKeys...); ok {
		t.InvoiceEmails = SplitEmails(raw)
	}

	return t
}

func (r *Registry) tableName(id string, vals map[string]string, key, fallback string) string {
	v := strings.TrimSpace(vals[key])
	if v == "" {
		return fallback
	}
	if !identifierPattern.MatchString(v) {
		r.logger.Warn("ignoring invalid table name", "tenant_id", id, "key", key, "value", v)
		return fallback
	}
	return v
}

// SplitEmails splits a ';' or ',' delimited list into trimmed addresses,
// dropping empties and case-insensitive duplicates while keeping order.
func SplitEmails(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' })
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

func tenantIDFromFile(name string) (string, bool) {
	id, ok := strings.CutSuffix(name, FileSuffix)
	if !ok || !tenantIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
