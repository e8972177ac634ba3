// Package sqlite implements the persistence contracts on modernc.org/sqlite.
//
// Each entity is stored as a JSON document next to the columns queries need.
// Saves are conditional on the version column, so a stale read-modify-write
// fails with persistence.ErrConflict instead of overwriting a newer state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/persistence/sqlite/migration"
	"github.com/example/station-engine/internal/persistence/sqlite/migrations"
)

// Store is the SQLite backend.
type Store struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

var _ persistence.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens the database described by config and applies the embedded
// migrations.
func Open(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	if _, err := migration.NewManager(pool.DB(), migrations.FS, logger).Run(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool, mapper: NewErrorMapper()}, nil
}

// OpenPath opens path with the default settings.
func OpenPath(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	return Open(ctx, migration.DefaultSQLiteConfig(path), logger)
}

// Close closes the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- StationStore implementation ---

// CreateStation inserts station at version 1.
func (s *Store) CreateStation(ctx context.Context, station domain.Station) (domain.Station, error) {
	station.Version = 1
	state, err := json.Marshal(station)
	if err != nil {
		return domain.Station{}, fmt.Errorf("sqlite: encode station: %w", err)
	}
	_, err = s.pool.DB().ExecContext(ctx,
		`INSERT INTO stations (id, name, type, status, version, state, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		station.ID, station.Name, string(station.Type), string(station.Status), station.Version, string(state), toMillis(station.UpdatedAt),
	)
	if err != nil {
		return domain.Station{}, s.mapper.MapError(err)
	}
	return station, nil
}

// GetStation loads a station by id.
func (s *Store) GetStation(ctx context.Context, id string) (domain.Station, error) {
	var station domain.Station
	row := s.pool.DB().QueryRowContext(ctx, `SELECT state, version FROM stations WHERE id = ?`, id)
	if err := scanDocument(row, &station, &station.Version); err != nil {
		return domain.Station{}, s.mapper.MapError(err)
	}
	return station, nil
}

// ListStations returns all stations ordered by id.
func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT state, version FROM stations ORDER BY id`)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	stations := make([]domain.Station, 0)
	for rows.Next() {
		var station domain.Station
		if err := scanDocument(rows, &station, &station.Version); err != nil {
			return nil, err
		}
		stations = append(stations, station)
	}
	return stations, rows.Err()
}

// SaveStation writes station if its version is current.
func (s *Store) SaveStation(ctx context.Context, station domain.Station) (domain.Station, error) {
	expected := station.Version
	station.Version++
	state, err := json.Marshal(station)
	if err != nil {
		return domain.Station{}, fmt.Errorf("sqlite: encode station: %w", err)
	}

	err = s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE stations SET name = ?, type = ?, status = ?, version = ?, state = ?, updated_at = ?
			 WHERE id = ? AND version = ?`,
			station.Name, string(station.Type), string(station.Status), station.Version, string(state), toMillis(station.UpdatedAt),
			station.ID, expected,
		)
		if err != nil {
			return err
		}
		return checkVersioned(ctx, tx, res, "stations", station.ID)
	})
	if err != nil {
		return domain.Station{}, s.mapper.MapError(err)
	}
	return station, nil
}

// --- MemberStore implementation ---

// CreateMember inserts member at version 1.
func (s *Store) CreateMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	member.Version = 1
	state, err := json.Marshal(member)
	if err != nil {
		return domain.Member{}, fmt.Errorf("sqlite: encode member: %w", err)
	}
	_, err = s.pool.DB().ExecContext(ctx,
		`INSERT INTO members (id, name, tier, version, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		member.ID, member.Name, string(member.Tier), member.Version, string(state), toMillis(member.CreatedAt), toMillis(member.UpdatedAt),
	)
	if err != nil {
		return domain.Member{}, s.mapper.MapError(err)
	}
	return member, nil
}

// GetMember loads a member by id.
func (s *Store) GetMember(ctx context.Context, id string) (domain.Member, error) {
	var member domain.Member
	row := s.pool.DB().QueryRowContext(ctx, `SELECT state, version FROM members WHERE id = ?`, id)
	if err := scanDocument(row, &member, &member.Version); err != nil {
		return domain.Member{}, s.mapper.MapError(err)
	}
	return member, nil
}

// ListMembers returns all members ordered by creation.
func (s *Store) ListMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT state, version FROM members ORDER BY created_at, id`)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	members := make([]domain.Member, 0)
	for rows.Next() {
		var member domain.Member
		if err := scanDocument(rows, &member, &member.Version); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// SaveMember writes member if its version is current.
func (s *Store) SaveMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	expected := member.Version
	member.Version++
	state, err := json.Marshal(member)
	if err != nil {
		return domain.Member{}, fmt.Errorf("sqlite: encode member: %w", err)
	}

	err = s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE members SET name = ?, tier = ?, version = ?, state = ?, updated_at = ?
			 WHERE id = ? AND version = ?`,
			member.Name, string(member.Tier), member.Version, string(state), toMillis(member.UpdatedAt),
			member.ID, expected,
		)
		if err != nil {
			return err
		}
		return checkVersioned(ctx, tx, res, "members", member.ID)
	})
	if err != nil {
		return domain.Member{}, s.mapper.MapError(err)
	}
	return member, nil
}

// --- PackageCatalog implementation ---

// SavePackage inserts or replaces pkg.
func (s *Store) SavePackage(ctx context.Context, pkg domain.Package) error {
	state, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("sqlite: encode package: %w", err)
	}
	_, err = s.pool.DB().ExecContext(ctx,
		`INSERT INTO packages (id, name, is_recharge_pack, state) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, is_recharge_pack = excluded.is_recharge_pack, state = excluded.state`,
		pkg.ID, pkg.Name, pkg.IsRechargePack, string(state),
	)
	return s.mapper.MapError(err)
}

// GetPackage loads a package by id.
func (s *Store) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	var pkg domain.Package
	row := s.pool.DB().QueryRowContext(ctx, `SELECT state FROM packages WHERE id = ?`, id)
	if err := scanDocument(row, &pkg, nil); err != nil {
		return domain.Package{}, s.mapper.MapError(err)
	}
	return pkg, nil
}

// ListPackages returns all packages ordered by name.
func (s *Store) ListPackages(ctx context.Context) ([]domain.Package, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT state FROM packages ORDER BY name, id`)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	packages := make([]domain.Package, 0)
	for rows.Next() {
		var pkg domain.Package
		if err := scanDocument(rows, &pkg, nil); err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// --- BillStore implementation ---

// CreateBill inserts bill and indexes its participants.
func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) error {
	state, err := json.Marshal(bill)
	if err != nil {
		return fmt.Errorf("sqlite: encode bill: %w", err)
	}
	err = s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bills (id, kind, station_id, cycle_tag, total, digest, state, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			bill.ID, string(bill.Kind), bill.StationID, bill.CycleTag, bill.Total.String(), bill.Digest, string(state), toMillis(bill.CreatedAt),
		); err != nil {
			return err
		}
		for _, m := range bill.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO bill_members (bill_id, member_id) VALUES (?, ?)`, bill.ID, m.ID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	return s.mapper.MapError(err)
}

// GetBill loads a bill by id.
func (s *Store) GetBill(ctx context.Context, id string) (domain.Bill, error) {
	var bill domain.Bill
	row := s.pool.DB().QueryRowContext(ctx, `SELECT state FROM bills WHERE id = ?`, id)
	if err := scanDocument(row, &bill, nil); err != nil {
		return domain.Bill{}, s.mapper.MapError(err)
	}
	return bill, nil
}

// ListBills returns the bills matching filter, newest first.
func (s *Store) ListBills(ctx context.Context, filter persistence.BillFilter) ([]domain.Bill, error) {
	var (
		where []string
		args  []any
	)
	if filter.StationID != "" {
		where = append(where, "station_id = ?")
		args = append(args, filter.StationID)
	}
	if filter.CycleTag != "" {
		where = append(where, "cycle_tag = ?")
		args = append(args, filter.CycleTag)
	}
	if filter.MemberID != "" {
		where = append(where, "id IN (SELECT bill_id FROM bill_members WHERE member_id = ?)")
		args = append(args, filter.MemberID)
	}

	query := `SELECT state FROM bills`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0)
	for rows.Next() {
		var bill domain.Bill
		if err := scanDocument(rows, &bill, nil); err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDocument decodes the state column into target. When version is not
// nil the version column overrides the one inside the document.
func scanDocument(row scanner, target any, version *int64) error {
	var (
		state string
		v     int64
	)
	dest := []any{&state}
	if version != nil {
		dest = append(dest, &v)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(state), target); err != nil {
		return fmt.Errorf("sqlite: decode document: %w", err)
	}
	if version != nil {
		*version = v
	}
	return nil
}

// checkVersioned turns a zero-row conditional update into ErrNotFound or
// ErrConflict.
func checkVersioned(ctx context.Context, tx *sql.Tx, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	return persistence.ErrConflict
}
