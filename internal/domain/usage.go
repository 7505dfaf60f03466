package domain

import (
	"fmt"
	"strings"
)

// UsageSnapshot holds the billable entity counts of one tenant at one point in time.
type UsageSnapshot struct {
	Clients   int
	Providers int
	Admins    int
	Users     int
	// UsersDerived is true when Users was computed from the other counts
	// because the users table could not be queried.
	UsersDerived bool
}

// RoleSum returns clients + providers + admins.
func (s UsageSnapshot) RoleSum() int {
	return s.Clients + s.Providers + s.Admins
}

// Detail renders the human-readable breakdown embedded in invoices.
func (s UsageSnapshot) Detail() string {
	return fmt.Sprintf("Clients: %d, Providers: %d, Admins: %d, Users: %d",
		s.Clients, s.Providers, s.Admins, s.Users)
}

// QuantityStrategy selects which count becomes the invoice quantity.
// It is a single value for a whole run.
type QuantityStrategy string

const (
	QuantitySum        QuantityStrategy = "SUM"
	QuantityUsers      QuantityStrategy = "USERS"
	QuantityUsersOrSum QuantityStrategy = "USERS_OR_SUM"
)

// ParseQuantityStrategy parses a strategy name case-insensitively.
// An empty string yields QuantitySum.
func ParseQuantityStrategy(s string) (QuantityStrategy, error) {
	switch QuantityStrategy(strings.ToUpper(strings.TrimSpace(s))) {
	case "", QuantitySum:
		return QuantitySum, nil
	case QuantityUsers:
		return QuantityUsers, nil
	case QuantityUsersOrSum:
		return QuantityUsersOrSum, nil
	default:
		return "", fmt.Errorf("unknown quantity strategy %q", s)
	}
}

// Quantity returns the billable quantity of a snapshot.
//
//	SUM          clients + providers + admins
//	USERS        the users count (itself the role sum when the users table is missing)
//	USERS_OR_SUM users when non-zero, otherwise the role sum
func (q QuantityStrategy) Quantity(s UsageSnapshot) int {
	switch q {
	case QuantityUsers:
		return s.Users
	case QuantityUsersOrSum:
		if s.Users > 0 {
			return s.Users
		}
		return s.RoleSum()
	default:
		return s.RoleSum()
	}
}
