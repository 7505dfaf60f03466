package domain

import "strings"

// Default table names used when a tenant file does not override them.
const (
	DefaultUsersTable     = "users"
	DefaultClientsTable   = "clients"
	DefaultProvidersTable = "providers"
	DefaultDBPort         = 3306
)

// DBParams holds the connection parameters of a tenant database.
type DBParams struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// TableNames holds the per-tenant table names queried by the usage collector.
type TableNames struct {
	Users     string
	Clients   string
	Providers string
}

// DefaultTableNames returns the table names used absent any override.
func DefaultTableNames() TableNames {
	return TableNames{
		Users:     DefaultUsersTable,
		Clients:   DefaultClientsTable,
		Providers: DefaultProvidersTable,
	}
}

// Tenant is one customer environment, rebuilt from its configuration file on
// every read. Tenants are never mutated in memory.
type Tenant struct {
	ID               string
	Name             string
	CompanyKey       string
	DB               DBParams
	Tables           TableNames
	ManagementStatus string
	ManagementDate   *CivilDate
	InvoiceEmails    []string
	RateOverride     *float64
	SourcePath       string
}

// MissingFields lists the mandatory connection fields a tenant lacks.
func (t Tenant) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(t.DB.Host) == "" {
		missing = append(missing, "DB_HOST")
	}
	if strings.TrimSpace(t.DB.Database) == "" {
		missing = append(missing, "DB_DATABASE")
	}
	if strings.TrimSpace(t.DB.User) == "" {
		missing = append(missing, "DB_USERNAME")
	}
	return missing
}

// Valid reports whether the tenant carries every mandatory field.
func (t Tenant) Valid() bool {
	return len(t.MissingFields()) == 0
}

// PricingKey is the key used to look the tenant up in the shared pricing table.
func (t Tenant) PricingKey() string {
	if t.CompanyKey != "" {
		return t.CompanyKey
	}
	return t.ID
}
