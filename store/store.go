// Package store persists xcd's durable state - image manifests and their
// tags, network pools and address allocations, in-progress build drafts,
// and jailed ZFS dataset bookkeeping - in a local sqlite database, in the
// same sql.Open("sqlite", dbPath) + modernc.org/sqlite style the teacher
// repo's boxer.go uses for its own sandbox bookkeeping. Schema changes are
// applied through golang-migrate rather than ad hoc CREATE TABLE calls, so
// upgrades between xcd versions are explicit and ordered.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store wraps the daemon's sqlite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and applies
// any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	// sqlite3.WithInstance only needs a *sql.DB to run statements against;
	// it does not require the connection to have been opened through
	// mattn/go-sqlite3 specifically, so this is safe to pair with the
	// modernc.org/sqlite-backed *sql.DB opened above.
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// ImageManifestRow is a row of the image_manifests table: one content-
// addressed manifest, keyed by its own digest.
type ImageManifestRow struct {
	Digest    string
	ChainID   string
	ConfigRaw []byte
}

func (s *Store) PutManifest(ctx context.Context, row ImageManifestRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_manifests (digest, chain_id, config_raw) VALUES (?, ?, ?)
		 ON CONFLICT(digest) DO UPDATE SET chain_id = excluded.chain_id, config_raw = excluded.config_raw`,
		row.Digest, row.ChainID, row.ConfigRaw)
	if err != nil {
		return fmt.Errorf("store: put manifest %s: %w", row.Digest, err)
	}
	return nil
}

func (s *Store) GetManifest(ctx context.Context, digest string) (ImageManifestRow, error) {
	var row ImageManifestRow
	row.Digest = digest
	err := s.db.QueryRowContext(ctx,
		`SELECT chain_id, config_raw FROM image_manifests WHERE digest = ?`, digest,
	).Scan(&row.ChainID, &row.ConfigRaw)
	if err != nil {
		return ImageManifestRow{}, fmt.Errorf("store: get manifest %s: %w", digest, err)
	}
	return row, nil
}

// TagManifest records name:tag -> digest, overwriting any prior mapping -
// the same "last write wins" semantics as docker/OCI tag mutation.
func (s *Store) TagManifest(ctx context.Context, name, tag, digest string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_manifest_tags (name, tag, digest) VALUES (?, ?, ?)
		 ON CONFLICT(name, tag) DO UPDATE SET digest = excluded.digest`,
		name, tag, digest)
	if err != nil {
		return fmt.Errorf("store: tag %s:%s -> %s: %w", name, tag, digest, err)
	}
	return nil
}

func (s *Store) ResolveTag(ctx context.Context, name, tag string) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx,
		`SELECT digest FROM image_manifest_tags WHERE name = ? AND tag = ?`, name, tag,
	).Scan(&digest)
	if err != nil {
		return "", fmt.Errorf("store: resolve %s:%s: %w", name, tag, err)
	}
	return digest, nil
}

// PutNetpool upserts a network's persisted allocation cursor and subnet.
func (s *Store) PutNetpool(ctx context.Context, name, subnet, lastAddr string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO netpool (name, subnet, last_addr) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET subnet = excluded.subnet, last_addr = excluded.last_addr`,
		name, subnet, lastAddr)
	if err != nil {
		return fmt.Errorf("store: put netpool %s: %w", name, err)
	}
	return nil
}

func (s *Store) PutAddressAllocation(ctx context.Context, network, address, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO address_allocation (network, address, token) VALUES (?, ?, ?)`,
		network, address, token)
	if err != nil {
		return fmt.Errorf("store: allocate %s in %s: %w", address, network, err)
	}
	return nil
}

func (s *Store) ReleaseAddressAllocation(ctx context.Context, token string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM address_allocation WHERE token = ?`, token)
	if err != nil {
		return 0, fmt.Errorf("store: release token %s: %w", token, err)
	}
	return res.RowsAffected()
}

// PutDraft records an in-progress Jailfile build's working container and
// base image, so "xc build" can resume after a client disconnects mid-way.
func (s *Store) PutDraft(ctx context.Context, id, containerID, baseRef string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, container_id, base_ref) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET container_id = excluded.container_id, base_ref = excluded.base_ref`,
		id, containerID, baseRef)
	if err != nil {
		return fmt.Errorf("store: put draft %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete draft %s: %w", id, err)
	}
	return nil
}

// PutJailedDataset records a ZFS dataset handed into a jail via "zfs
// jail", so a restart can find and reattach (or release) it.
func (s *Store) PutJailedDataset(ctx context.Context, containerID, dataset string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (container_id, dataset) VALUES (?, ?)`, containerID, dataset)
	if err != nil {
		return fmt.Errorf("store: record jailed dataset %s for %s: %w", dataset, containerID, err)
	}
	return nil
}

func (s *Store) ListJailedDatasets(ctx context.Context, containerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dataset FROM datasets WHERE container_id = ?`, containerID)
	if err != nil {
		return nil, fmt.Errorf("store: list jailed datasets for %s: %w", containerID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
