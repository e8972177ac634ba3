// Package persistence defines the storage collaborator contracts used by the
// application services and the optimistic read-modify-write loop on top of
// them. Backends live in the memory, sqlite and redisstore subpackages.
package persistence

import (
	"context"

	"github.com/example/station-engine/internal/domain"
)

// StationStore persists stations under optimistic concurrency.
type StationStore interface {
	// CreateStation stores a new station at version 1.
	CreateStation(ctx context.Context, station domain.Station) (domain.Station, error)
	GetStation(ctx context.Context, id string) (domain.Station, error)
	ListStations(ctx context.Context) ([]domain.Station, error)
	// SaveStation writes station only if the stored version still equals
	// station.Version and returns the stored copy at the next version.
	// A stale write fails with ErrConflict.
	SaveStation(ctx context.Context, station domain.Station) (domain.Station, error)
}

// MemberStore persists members under optimistic concurrency.
type MemberStore interface {
	CreateMember(ctx context.Context, member domain.Member) (domain.Member, error)
	GetMember(ctx context.Context, id string) (domain.Member, error)
	ListMembers(ctx context.Context) ([]domain.Member, error)
	// SaveMember follows the SaveStation contract.
	SaveMember(ctx context.Context, member domain.Member) (domain.Member, error)
}

// PackageCatalog stores the sellable packages.
type PackageCatalog interface {
	// SavePackage inserts or replaces pkg.
	SavePackage(ctx context.Context, pkg domain.Package) error
	GetPackage(ctx context.Context, id string) (domain.Package, error)
	ListPackages(ctx context.Context) ([]domain.Package, error)
}

// BillFilter narrows bill listings. Zero fields match everything.
type BillFilter struct {
	StationID string
	CycleTag  string
	MemberID  string
	// Limit caps the result, newest first. Zero means no limit.
	Limit int
}

// Matches reports whether b passes the filter, ignoring Limit.
func (f BillFilter) Matches(b domain.Bill) bool {
	if f.StationID != "" && b.StationID != f.StationID {
		return false
	}
	if f.CycleTag != "" && b.CycleTag != f.CycleTag {
		return false
	}
	if f.MemberID != "" {
		for _, m := range b.Members {
			if m.ID == f.MemberID {
				return true
			}
		}
		return false
	}
	return true
}

// BillStore keeps settled bills. Bills are immutable once created.
type BillStore interface {
	CreateBill(ctx context.Context, bill domain.Bill) error
	GetBill(ctx context.Context, id string) (domain.Bill, error)
	ListBills(ctx context.Context, filter BillFilter) ([]domain.Bill, error)
}

// Store bundles every collaborator a backend provides.
type Store interface {
	StationStore
	MemberStore
	PackageCatalog
	BillStore
	Close() error
}
