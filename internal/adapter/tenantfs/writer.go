package tenantfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// now is replaced in tests.
var now = time.Now

// SetRate rewrites the tenant file in place: earlier rate lines (and the
// invoice email line when email is set) are removed, the new values are
// appended and RATE_UPDATED_AT is stamped. The rewrite goes through a temp
// file and a rename so readers never see a partial file.
func (r *Registry) SetRate(ctx context.Context, id string, rate float64, invoiceEmail string) error {
	if !tenantIDPattern.MatchString(id) {
		return domain.ErrTenantNotFound
	}
	if !isFinite(rate) || rate < 0 {
		return &domain.InvalidRateError{Reason: "rate must be a finite number >= 0"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.path(id)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrTenantNotFound
		}
		return fmt.Errorf("stat tenant file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening tenant file: %w", err)
	}
	lines, err := readLines(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("reading tenant file: %w", err)
	}

	drop := append([]string{keyRateUpdatedAt}, rateKeys...)
	if invoiceEmail != "" {
		drop = append(drop, keyInvoiceEmail)
	}

	var buf bytes.Buffer
	for _, l := range lines {
		if l.key != "" && slices.Contains(drop, l.key) {
			continue
		}
		buf.WriteString(l.raw)
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "%s=%s\n", rateKeys[0], strconv.FormatFloat(rate, 'f', -1, 64))
	if invoiceEmail != "" {
		fmt.Fprintf(&buf, "%s=%s\n", keyInvoiceEmail, invoiceEmail)
	}
	fmt.Fprintf(&buf, "%s=%s\n", keyRateUpdatedAt, now().UTC().Format(time.RFC3339))

	if err := writeAtomic(path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "tenant rate updated", "tenant_id", id, "rate", rate)
	return nil
}

func writeAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing tenant file: %w", err)
	}
	return nil
}
