package mysql_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/tenantbill/internal/adapter/mysql"
	"github.com/neomorfeo/tenantbill/internal/domain"
)

func testTenant() domain.Tenant {
	return domain.Tenant{
		ID:     "acme",
		DB:     domain.DBParams{Host: "db.acme.internal", Port: 3307, Database: "acme_prod", User: "billing", Password: "secret"},
		Tables: domain.DefaultTableNames(),
	}
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, mysql.OpenFunc) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	open := func(string) (*sql.DB, error) { return db, nil }
	return db, mock, open
}

var (
	clientsQuery   = regexp.QuoteMeta("SELECT COUNT(*) FROM `clients`")
	providersQuery = regexp.QuoteMeta("SELECT `type`, COUNT(*) FROM `providers` GROUP BY `type`")
	usersQuery     = regexp.QuoteMeta("SELECT COUNT(*) FROM `users`")
)

func TestCollect_FullSnapshot(t *testing.T) {
	_, mock, open := newMock(t)

	mock.ExpectPing()
	mock.ExpectQuery(clientsQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(providersQuery).WillReturnRows(sqlmock.NewRows([]string{"type", "count"}).
		AddRow("Admin", 1).
		AddRow("PROVIDER", 2).
		AddRow("super_admin", 1).
		AddRow(nil, 4).
		AddRow("guest", 3))
	mock.ExpectQuery(usersQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(20))
	mock.ExpectClose()

	snap, err := mysql.NewCollector(open, time.Second, nil).Collect(context.Background(), testTenant())
	require.NoError(t, err)

	assert.Equal(t, domain.UsageSnapshot{Clients: 5, Providers: 2, Admins: 2, Users: 20}, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollect_OptionalTablesMissing(t *testing.T) {
	_, mock, open := newMock(t)
	missing := &gomysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}

	mock.ExpectPing()
	mock.ExpectQuery(clientsQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(providersQuery).WillReturnError(missing)
	mock.ExpectQuery(usersQuery).WillReturnError(missing)
	mock.ExpectClose()

	snap, err := mysql.NewCollector(open, time.Second, nil).Collect(context.Background(), testTenant())
	require.NoError(t, err)

	assert.Equal(t, domain.UsageSnapshot{Clients: 7, Users: 7, UsersDerived: true}, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollect_CustomTableNames(t *testing.T) {
	_, mock, open := newMock(t)
	tenant := testTenant()
	tenant.Tables = domain.TableNames{Users: "app_users", Clients: "customers", Providers: "staff"}

	mock.ExpectPing()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `customers`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `staff` GROUP BY")).
		WillReturnRows(sqlmock.NewRows([]string{"type", "count"}).AddRow("provider", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `app_users`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectClose()

	snap, err := mysql.NewCollector(open, time.Second, nil).Collect(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, domain.UsageSnapshot{Clients: 1, Providers: 1, Users: 2}, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollect_AccessDeniedIsSoft(t *testing.T) {
	_, mock, open := newMock(t)

	mock.ExpectPing().WillReturnError(&gomysql.MySQLError{Number: 1045, Message: "Access denied"})
	mock.ExpectClose()

	_, err := mysql.NewCollector(open, time.Second, nil).Collect(context.Background(), testTenant())

	var soft *domain.SoftDBError
	require.ErrorAs(t, err, &soft)
	assert.Equal(t, mysql.CodeAccessDenied, soft.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "the handle must be closed on failure")
}

func TestCollect_UnrecognisedPingFailureIsSoft(t *testing.T) {
	_, mock, open := newMock(t)

	mock.ExpectPing().WillReturnError(errors.New("handshake failed"))
	mock.ExpectClose()

	_, err := mysql.NewCollector(open, time.Second, nil).Collect(context.Background(), testTenant())

	var soft *domain.SoftDBError
	require.ErrorAs(t, err, &soft)
	assert.Equal(t, mysql.CodeReset, soft.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollect_MissingClientsTableIsHard(t *testing.T) {
	_, mock, open := newMock(t)

	mock.ExpectPing()
	mock.ExpectQuery(clientsQuery).WillReturnError(&gomysql.MySQLError{Number: 1146, Message: "Table 'acme.clients' doesn't exist"})
	mock.ExpectClose()

	_, err := mysql.NewCollector(open, time.Second, nil).Collect(context.Background(), testTenant())
	require.Error(t, err)

	var soft *domain.SoftDBError
	assert.False(t, errors.As(err, &soft), "a missing mandatory table is not a connection failure")
	assert.Contains(t, err.Error(), "counting clients")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollect_MissingParams(t *testing.T) {
	opened := false
	open := func(string) (*sql.DB, error) {
		opened = true
		return nil, errors.New("unexpected open")
	}
	tenant := testTenant()
	tenant.DB.Host = ""

	_, err := mysql.NewCollector(open, time.Second, nil).Collect(context.Background(), tenant)

	var soft *domain.SoftDBError
	require.ErrorAs(t, err, &soft)
	assert.Equal(t, mysql.CodeMissingParams, soft.Code)
	assert.False(t, opened)
}

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	cases := []struct {
		name string
		err  error
		code string
		ok   bool
	}{
		{"refused", refused, mysql.CodeRefused, true},
		{"wrapped refused", fmt.Errorf("ping: %w", refused), mysql.CodeRefused, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "db.invalid", IsNotFound: true}, mysql.CodeNotFound, true},
		{"deadline", context.DeadlineExceeded, mysql.CodeTimeout, true},
		{"bad conn", driver.ErrBadConn, mysql.CodeReset, true},
		{"invalid conn", gomysql.ErrInvalidConn, mysql.CodeReset, true},
		{"unknown db", &gomysql.MySQLError{Number: 1049}, mysql.CodeBadDB, true},
		{"db access", &gomysql.MySQLError{Number: 1044}, mysql.CodeDBAccessDenied, true},
		{"syntax error", &gomysql.MySQLError{Number: 1064}, "", false},
		{"plain", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, ok := mysql.Classify(tc.err)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestDSN(t *testing.T) {
	dsn := mysql.DSN(testTenant().DB, 5*time.Second)

	cfg, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "billing", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "db.acme.internal:3307", cfg.Addr)
	assert.Equal(t, "acme_prod", cfg.DBName)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}
