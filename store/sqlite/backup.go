/*
backup.go - Purge with backup, and restore

PURPOSE:
  Operator maintenance. PurgeTransactional snapshots the database with
  VACUUM INTO, compresses the snapshot with zstd, records its BLAKE3
  digest and only then deletes orders, lines and aggregates.
  RestoreBackup turns such a file back into a database file.

BACKUP FILE:
  <backup dir>/pos-backup-<YYYYMMDD_HHMMSS>.db.zst
  A second backup within the same second gets a _<n> suffix.

SEE ALSO:
  - sqlite.go: Store
  - pos/store.go: Purger interface
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/kittykitkitt/kit/pos"
)

// purgeTables are cleared children first.
var purgeTables = []string{"order_items", "orders", "sales"}

// PurgeTransactional backs up the database, then deletes every order,
// order line and aggregate row in one transaction.
func (s *Store) PurgeTransactional(ctx context.Context) (pos.PurgeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.backup(ctx)
	if err != nil {
		return pos.PurgeReport{}, fmt.Errorf("backup before purge: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range purgeTables {
			tc := pos.TableCount{Table: table}
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&tc.Before); err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&tc.After); err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			report.Tables = append(report.Tables, tc)
		}
		return nil
	})
	if err != nil {
		return pos.PurgeReport{}, err
	}
	return report, nil
}

// backup writes a compressed snapshot. The caller holds s.mu.
func (s *Store) backup(ctx context.Context) (pos.PurgeReport, error) {
	dir := s.backupDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pos.PurgeReport{}, err
	}

	snap, err := os.CreateTemp(dir, "pos-snapshot-*.db")
	if err != nil {
		return pos.PurgeReport{}, err
	}
	snapPath := snap.Name()
	snap.Close()
	defer os.Remove(snapPath)

	// VACUUM INTO accepts an existing empty file.
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", snapPath); err != nil {
		return pos.PurgeReport{}, fmt.Errorf("snapshot: %w", err)
	}

	out, path, err := createExclusive(dir, "pos-backup-"+s.now().Format("20060102_150405"), ".db.zst")
	if err != nil {
		return pos.PurgeReport{}, err
	}

	digest, err := compressFile(snapPath, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return pos.PurgeReport{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return pos.PurgeReport{}, err
	}
	s.logger.Info("backup written",
		"path", path,
		"size", humanize.Bytes(uint64(info.Size())),
		"blake3", digest,
	)
	return pos.PurgeReport{BackupPath: path, BackupSize: info.Size(), BackupDigest: digest}, nil
}

// compressFile zstd-compresses src into dst and returns the hex BLAKE3
// digest of the compressed bytes.
func compressFile(src string, dst io.Writer) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	h := blake3.New()
	enc, err := zstd.NewWriter(io.MultiWriter(dst, h))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// createExclusive creates dir/base+ext, or dir/base_<n>+ext when taken.
func createExclusive(dir, base, ext string) (*os.File, string, error) {
	for n := 0; n < 1000; n++ {
		name := base + ext
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free backup name for %s", base)
}

// =============================================================================
// RESTORE
// =============================================================================

// FileDigest returns the hex BLAKE3 digest of a file.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RestoreBackup decompresses a purge backup into dst. When wantDigest is
// non-empty the backup must match it. dst is replaced atomically; the
// caller must make sure no Store has it open.
func RestoreBackup(src, dst, wantDigest string) error {
	if wantDigest != "" {
		got, err := FileDigest(src)
		if err != nil {
			return err
		}
		if got != wantDigest {
			return fmt.Errorf("backup %s: digest mismatch: got %s, want %s", src, got, wantDigest)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return err
	}
	defer dec.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".restore-*.db")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, dec); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("decompress %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	// Stale WAL files would be replayed over the restored database.
	os.Remove(dst + "-wal")
	os.Remove(dst + "-shm")
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
