package otel_test

import (
	"testing"

	adapter "github.com/neomorfeo/tenantbill/internal/adapter/otel"
)

func TestOpenSQLite_MigratesAndInstruments(t *testing.T) {
	db, err := adapter.OpenSQLite(t.TempDir() + "/state.db")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM tenant_pricing").Scan(&n); err != nil {
		t.Fatalf("tenant_pricing not migrated: %v", err)
	}
}

func TestOpenMySQL_Lazy(t *testing.T) {
	// No server is contacted until the first query.
	db, err := adapter.OpenMySQL("billing:secret@tcp(127.0.0.1:1)/pricing")
	if err != nil {
		t.Fatalf("OpenMySQL failed: %v", err)
	}
	db.Close()

	if _, err := adapter.OpenMySQL("::not a dsn::"); err == nil {
		t.Error("expected error for malformed dsn")
	}
}
