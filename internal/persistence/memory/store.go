// Package memory provides an in-process implementation of the persistence
// contracts with the same versioning semantics as the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
)

// Storage keeps every record in maps guarded by one RWMutex. Values are
// cloned on the way in and out so callers never share slices with the store.
type Storage struct {
	mu       sync.RWMutex
	stations map[string]domain.Station
	members  map[string]domain.Member
	packages map[string]domain.Package
	bills    map[string]domain.Bill
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		stations: make(map[string]domain.Station),
		members:  make(map[string]domain.Member),
		packages: make(map[string]domain.Package),
		bills:    make(map[string]domain.Bill),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// --- StationStore implementation ---

// CreateStation stores a new station at version 1.
func (s *Storage) CreateStation(ctx context.Context, station domain.Station) (domain.Station, error) {
	if err := ctx.Err(); err != nil {
		return domain.Station{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[station.ID]; ok {
		return domain.Station{}, fmt.Errorf("memory: station %s: %w", station.ID, persistence.ErrAlreadyExists)
	}
	station.Version = 1
	s.stations[station.ID] = station.Clone()
	return station.Clone(), nil
}

// GetStation retrieves a station by ID.
func (s *Storage) GetStation(ctx context.Context, id string) (domain.Station, error) {
	if err := ctx.Err(); err != nil {
		return domain.Station{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	station, ok := s.stations[id]
	if !ok {
		return domain.Station{}, persistence.ErrNotFound
	}
	return station.Clone(), nil
}

// ListStations returns all stations ordered by ID.
func (s *Storage) ListStations(ctx context.Context) ([]domain.Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stations := make([]domain.Station, 0, len(s.stations))
	for _, station := range s.stations {
		stations = append(stations, station.Clone())
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].ID < stations[j].ID
	})
	return stations, nil
}

// SaveStation replaces the station if its version is current.
func (s *Storage) SaveStation(ctx context.Context, station domain.Station) (domain.Station, error) {
	if err := ctx.Err(); err != nil {
		return domain.Station{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.stations[station.ID]
	if !ok {
		return domain.Station{}, persistence.ErrNotFound
	}
	if stored.Version != station.Version {
		return domain.Station{}, persistence.ErrConflict
	}
	station.Version++
	s.stations[station.ID] = station.Clone()
	return station.Clone(), nil
}

// --- MemberStore implementation ---

// CreateMember stores a new member at version 1.
func (s *Storage) CreateMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return domain.Member{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[member.ID]; ok {
		return domain.Member{}, fmt.Errorf("memory: member %s: %w", member.ID, persistence.ErrAlreadyExists)
	}
	member.Version = 1
	s.members[member.ID] = member.Clone()
	return member.Clone(), nil
}

// GetMember retrieves a member by ID.
func (s *Storage) GetMember(ctx context.Context, id string) (domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return domain.Member{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.members[id]
	if !ok {
		return domain.Member{}, persistence.ErrNotFound
	}
	return member.Clone(), nil
}

// ListMembers returns all members ordered by CreatedAt ascending.
func (s *Storage) ListMembers(ctx context.Context) ([]domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]domain.Member, 0, len(s.members))
	for _, member := range s.members {
		members = append(members, member.Clone())
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

// SaveMember replaces the member if its version is current.
func (s *Storage) SaveMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return domain.Member{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.members[member.ID]
	if !ok {
		return domain.Member{}, persistence.ErrNotFound
	}
	if stored.Version != member.Version {
		return domain.Member{}, persistence.ErrConflict
	}
	member.Version++
	s.members[member.ID] = member.Clone()
	return member.Clone(), nil
}

// --- PackageCatalog implementation ---

// SavePackage inserts or replaces a package.
func (s *Storage) SavePackage(ctx context.Context, pkg domain.Package) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packages[pkg.ID] = pkg.Clone()
	return nil
}

// GetPackage retrieves a package by ID.
func (s *Storage) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	if err := ctx.Err(); err != nil {
		return domain.Package{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	pkg, ok := s.packages[id]
	if !ok {
		return domain.Package{}, persistence.ErrNotFound
	}
	return pkg.Clone(), nil
}

// ListPackages returns all packages ordered by name.
func (s *Storage) ListPackages(ctx context.Context) ([]domain.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	packages := make([]domain.Package, 0, len(s.packages))
	for _, pkg := range s.packages {
		packages = append(packages, pkg.Clone())
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

// CreateBill stores a settled bill.
func (s *Storage) CreateBill(ctx context.Context, bill domain.Bill) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bills[bill.ID]; ok {
		return fmt.Errorf("memory: bill %s: %w", bill.ID, persistence.ErrAlreadyExists)
	}
	s.bills[bill.ID] = bill.Clone()
	return nil
}

// GetBill retrieves a bill by ID.
func (s *Storage) GetBill(ctx context.Context, id string) (domain.Bill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bill{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.bills[id]
	if !ok {
		return domain.Bill{}, persistence.ErrNotFound
	}
	return bill.Clone(), nil
}

// ListBills returns the bills matching filter, newest first.
func (s *Storage) ListBills(ctx context.Context, filter persistence.BillFilter) ([]domain.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := make([]domain.Bill, 0)
	for _, bill := range s.bills {
		if filter.Matches(bill) {
			bills = append(bills, bill.Clone())
		}
	}
	sort.Slice(bills, func(i, j int) bool {
		if bills[i].CreatedAt.Equal(bills[j].CreatedAt) {
			return bills[i].ID > bills[j].ID
		}
		return bills[i].CreatedAt.After(bills[j].CreatedAt)
	})
	if filter.Limit > 0 && len(bills) > filter.Limit {
		bills = bills[:filter.Limit]
	}
	return bills, nil
}
