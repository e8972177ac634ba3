// Package redisstore implements the persistence contracts on Redis.
//
// Entities are JSON strings under <prefix><kind>:<id>, with a set per kind
// for listing. Conditional saves WATCH the entity key, compare the stored
// version and write inside MULTI/EXEC; a concurrent writer aborts the EXEC
// and surfaces as persistence.ErrConflict.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "station-engine:"

// Store is the Redis backend.
type Store struct {
	client *redis.Client
	prefix string
}

var _ persistence.Store = (*Store)(nil)

// New wraps client. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(kind, id string) string {
	return s.prefix + kind + ":" + id
}

func (s *Store) index(kind string) string {
	return s.prefix + kind
}

// --- StationStore implementation ---

// CreateStation stores station at version 1.
func (s *Store) CreateStation(ctx context.Context, station domain.Station) (domain.Station, error) {
	station.Version = 1
	if err := s.create(ctx, "station", station.ID, station); err != nil {
		return domain.Station{}, err
	}
	return station, nil
}

// GetStation loads a station.
func (s *Store) GetStation(ctx context.Context, id string) (domain.Station, error) {
	var station domain.Station
	if err := s.get(ctx, "station", id, &station); err != nil {
		return domain.Station{}, err
	}
	return station, nil
}

// ListStations returns all stations ordered by id.
func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	stations, err := list[domain.Station](ctx, s, "station")
	if err != nil {
		return nil, err
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].ID < stations[j].ID })
	return stations, nil
}

// SaveStation writes station if its version is current.
func (s *Store) SaveStation(ctx context.Context, station domain.Station) (domain.Station, error) {
	err := s.save(ctx, "station", station.ID, station.Version, func(stored []byte) (int64, error) {
		var current domain.Station
		err := json.Unmarshal(stored, &current)
		return current.Version, err
	}, func() any {
		station.Version++
		return station
	})
	if err != nil {
		return domain.Station{}, err
	}
	return station, nil
}

// --- MemberStore implementation ---

// CreateMember stores member at version 1.
func (s *Store) CreateMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	member.Version = 1
	if err := s.create(ctx, "member", member.ID, member); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// GetMember loads a member.
func (s *Store) GetMember(ctx context.Context, id string) (domain.Member, error) {
	var member domain.Member
	if err := s.get(ctx, "member", id, &member); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// ListMembers returns all members ordered by creation.
func (s *Store) ListMembers(ctx context.Context) ([]domain.Member, error) {
	members, err := list[domain.Member](ctx, s, "member")
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

// SaveMember writes member if its version is current.
func (s *Store) SaveMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	err := s.save(ctx, "member", member.ID, member.Version, func(stored []byte) (int64, error) {
		var current domain.Member
		err := json.Unmarshal(stored, &current)
		return current.Version, err
	}, func() any {
		member.Version++
		return member
	})
	if err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// --- PackageCatalog implementation ---

// SavePackage inserts or replaces pkg.
func (s *Store) SavePackage(ctx context.Context, pkg domain.Package) error {
	state, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("redisstore: encode package: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("package", pkg.ID), state, 0)
		pipe.SAdd(ctx, s.index("package"), pkg.ID)
		return nil
	})
	return err
}

// GetPackage loads a package.
func (s *Store) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	var pkg domain.Package
	if err := s.get(ctx, "package", id, &pkg); err != nil {
		return domain.Package{}, err
	}
	return pkg, nil
}

// ListPackages returns all packages ordered by name.
func (s *Store) ListPackages(ctx context.Context) ([]domain.Package, error) {
	packages, err := list[domain.Package](ctx, s, "package")
	if err != nil {
		return nil, err
	}
	sort.Slice(packages, func(i, j int) bool {
		if packages[i].Name == packages[j].Name {
			return packages[i].ID < packages[j].ID
		}
		return packages[i].Name < packages[j].Name
	})
	return packages, nil
}

// --- BillStore implementation ---

// CreateBill stores bill and adds it to the time-ordered indexes.
func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) error {
	state, err := json.Marshal(bill)
	if err != nil {
		return fmt.Errorf("redisstore: encode bill: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key("bill", bill.ID), state, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("redisstore: bill %s: %w", bill.ID, persistence.ErrAlreadyExists)
	}

	z := redis.Z{Score: float64(bill.CreatedAt.UnixMilli()), Member: bill.ID}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.index("bills"), z)
		if bill.StationID != "" {
			pipe.ZAdd(ctx, s.key("bills:station", bill.StationID), z)
		}
		if bill.CycleTag != "" {
			pipe.ZAdd(ctx, s.key("bills:cycle", bill.CycleTag), z)
		}
		for _, m := range bill.Members {
			pipe.ZAdd(ctx, s.key("bills:member", m.ID), z)
		}
		return nil
	})
	return err
}

// GetBill loads a bill.
func (s *Store) GetBill(ctx context.Context, id string) (domain.Bill, error) {
	var bill domain.Bill
	if err := s.get(ctx, "bill", id, &bill); err != nil {
		return domain.Bill{}, err
	}
	return bill, nil
}

// ListBills walks the narrowest index for filter, newest first.
func (s *Store) ListBills(ctx context.Context, filter persistence.BillFilter) ([]domain.Bill, error) {
	index := s.index("bills")
	switch {
	case filter.StationID != "":
		index = s.key("bills:station", filter.StationID)
	case filter.MemberID != "":
		index = s.key("bills:member", filter.MemberID)
	case filter.CycleTag != "":
		index = s.key("bills:cycle", filter.CycleTag)
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	values, err := s.fetch(ctx, "bill", ids)
	if err != nil {
		return nil, err
	}

	bills := make([]domain.Bill, 0, len(values))
	for _, raw := range values {
		var bill domain.Bill
		if err := json.Unmarshal(raw, &bill); err != nil {
			return nil, fmt.Errorf("redisstore: decode bill: %w", err)
		}
		if !filter.Matches(bill) {
			continue
		}
		bills = append(bills, bill)
		if filter.Limit > 0 && len(bills) == filter.Limit {
			break
		}
	}
	return bills, nil
}

// --- helpers ---

func (s *Store) create(ctx context.Context, kind, id string, value any) error {
	state, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisstore: encode %s: %w", kind, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(kind, id), state, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("redisstore: %s %s: %w", kind, id, persistence.ErrAlreadyExists)
	}
	return s.client.SAdd(ctx, s.index(kind), id).Err()
}

func (s *Store) get(ctx context.Context, kind, id string, target any) error {
	raw, err := s.client.Get(ctx, s.key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return persistence.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("redisstore: decode %s: %w", kind, err)
	}
	return nil
}

// save writes next() under WATCH when the stored version equals expected.
func (s *Store) save(ctx context.Context, kind, id string, expected int64, version func([]byte) (int64, error), next func() any) error {
	key := s.key(kind, id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return err
		}
		stored, err := version(raw)
		if err != nil {
			return fmt.Errorf("redisstore: decode %s: %w", kind, err)
		}
		if stored != expected {
			return persistence.ErrConflict
		}

		state, err := json.Marshal(next())
		if err != nil {
			return fmt.Errorf("redisstore: encode %s: %w", kind, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, state, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return persistence.ErrConflict
	}
	return err
}

func (s *Store) fetch(ctx context.Context, kind string, ids []string) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(kind, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a document
			continue
		}
		out = append(out, []byte(str))
	}
	return out, nil
}

func list[T any](ctx context.Context, s *Store, kind string) ([]T, error) {
	ids, err := s.client.SMembers(ctx, s.index(kind)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	values, err := s.fetch(ctx, kind, ids)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(values))
	for _, raw := range values {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("redisstore: decode %s: %w", kind, err)
		}
		items = append(items, item)
	}
	return items, nil
}
