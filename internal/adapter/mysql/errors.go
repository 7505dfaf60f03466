package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"syscall"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// Codes attached to soft database errors. They mirror the names operators
// already know from driver and socket errors.
const (
	CodeMissingParams   = "EMISSINGPARAMS"
	CodeAccessDenied    = "ER_ACCESS_DENIED_ERROR"
	CodeDBAccessDenied  = "ER_DBACCESS_DENIED_ERROR"
	CodeBadDB           = "ER_BAD_DB_ERROR"
	CodeTooManyConns    = "ER_CON_COUNT_ERROR"
	CodeHostBlocked     = "ER_HOST_NOT_PRIVILEGED"
	CodeNotFound        = "ENOTFOUND"
	CodeRefused         = "ECONNREFUSED"
	CodeTimeout         = "ETIMEDOUT"
	CodeReset           = "ECONNRESET"
	CodeHostUnreachable = "EHOSTUNREACH"
	CodeNetUnreachable  = "ENETUNREACH"
)

// serverCodes maps MySQL server error numbers that mean "cannot use this
// database right now" to their codes.
var serverCodes = map[uint16]string{
	1040: CodeTooManyConns,
	1044: CodeDBAccessDenied,
	1045: CodeAccessDenied,
	1049: CodeBadDB,
	1129: CodeHostBlocked,
	1130: CodeHostBlocked,
	1698: CodeAccessDenied,
}

// Classify returns the soft error code for a connection-level failure.
// ok is false for errors that are not connection problems (bad SQL, missing table).
func Classify(err error) (code string, ok bool) {
	if err == nil {
		return "", false
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		code, ok := serverCodes[myErr.Number]
		return code, ok
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CodeTimeout, true
		}
		return CodeNotFound, true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeRefused, true
	case errors.Is(err, syscall.EHOSTUNREACH):
		return CodeHostUnreachable, true
	case errors.Is(err, syscall.ENETUNREACH):
		return CodeNetUnreachable, true
	case errors.Is(err, syscall.ECONNRESET):
		return CodeReset, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout, true
		}
		return CodeReset, true
	}

	if errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return CodeReset, true
	}

	return "", false
}

// soften wraps err as a *domain.SoftDBError when it is a connection failure.
// fallback is used for errors Classify does not recognise; an empty fallback
// returns err unchanged.
func soften(err error, fallback string) error {
	code, ok := Classify(err)
	if !ok {
		if fallback == "" {
			return err
		}
		code = fallback
	}
	return &domain.SoftDBError{Code: code, Err: err}
}
