package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
)

// CatalogService manages the package catalog and the station floor.
type CatalogService struct {
	catalog  persistence.PackageCatalog
	stations persistence.StationStore
	rt       Runtime
}

// NewCatalogService constructs a catalog service with the provided dependencies.
func NewCatalogService(catalog persistence.PackageCatalog, stations persistence.StationStore, now func() time.Time) *CatalogService {
	return NewCatalogServiceWithRuntime(catalog, stations, Runtime{Now: now})
}

// NewCatalogServiceWithRuntime constructs a catalog service sharing rt.
func NewCatalogServiceWithRuntime(catalog persistence.PackageCatalog, stations persistence.StationStore, rt Runtime) *CatalogService {
	return &CatalogService{catalog: catalog, stations: stations, rt: rt.withDefaults()}
}

// SavePackage validates input and creates or replaces a package.
func (s *CatalogService) SavePackage(ctx context.Context, input PackageInput) (pkg domain.Package, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	ctx, op := s.rt.begin(ctx, "CatalogService", "SavePackage", "package_id", input.ID)
	defer func() {
		op.finish(ctx, err, "failed to save package")
		if err == nil {
			op.logger.InfoContext(ctx, "package saved", "name", pkg.Name, "price", pkg.Price.String())
		}
	}()

	vErr := validatePackageInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.catalog == nil {
		err = fmt.Errorf("package catalog not configured")
		return
	}

	pkg = domain.Package{
		ID:               strings.TrimSpace(input.ID),
		Name:             strings.TrimSpace(input.Name),
		Duration:         input.Duration,
		Price:            input.Price,
		PlayerCapacity:   input.PlayerCapacity,
		ValidityDays:     input.ValidityDays,
		IsAddTimePackage: input.IsAddTimePackage,
		IsRechargePack:   input.IsRechargePack,
		IsBoardGamePass:  input.IsBoardGamePass,
		IsPriorityOffer:  input.IsPriorityOffer,
		Availability:     input.Availability,
	}
	if err = s.catalog.SavePackage(ctx, pkg); err != nil {
		err = mapStoreError("package", pkg.ID, err)
	}
	return
}

func validatePackageInput(input PackageInput) *ValidationError {
	vErr := validateParams(input)
	if input.Price.IsNegative() {
		vErr.add("price", "must not be negative")
	}
	if input.IsRechargePack {
		if input.Duration <= 0 {
			vErr.add("duration", "is required for a recharge pack")
		}
		if input.ValidityDays <= 0 {
			vErr.add("validity_days", "is required for a recharge pack")
		}
	}
	if input.Availability.Start < 0 || input.Availability.Start >= 24*time.Hour {
		vErr.add("availability.start", "must be within the day")
	}
	if input.Availability.End < 0 || input.Availability.End >= 24*time.Hour {
		vErr.add("availability.end", "must be within the day")
	}
	return vErr
}

// Package returns one package.
func (s *CatalogService) Package(ctx context.Context, id string) (domain.Package, error) {
	if s == nil || s.catalog == nil {
		return domain.Package{}, fmt.Errorf("package catalog not configured")
	}
	pkg, err := s.catalog.GetPackage(ctx, id)
	if err != nil {
		return domain.Package{}, mapStoreError("package", id, err)
	}
	return pkg, nil
}

// Packages lists the whole catalog ordered by name.
func (s *CatalogService) Packages(ctx context.Context) ([]domain.Package, error) {
	if s == nil || s.catalog == nil {
		return nil, nil
	}
	return s.catalog.ListPackages(ctx)
}

// AvailablePackages lists the packages that can be sold right now.
func (s *CatalogService) AvailablePackages(ctx context.Context) ([]domain.Package, error) {
	all, err := s.Packages(ctx)
	if err != nil {
		return nil, err
	}
	now := s.rt.Now()
	available := make([]domain.Package, 0, len(all))
	for _, pkg := range all {
		if pkg.AvailableAt(now) {
			available = append(available, pkg)
		}
	}
	return available, nil
}

// RegisterStation adds an available station to the floor.
func (s *CatalogService) RegisterStation(ctx context.Context, params RegisterStationParams) (station domain.Station, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	ctx, op := s.rt.begin(ctx, "CatalogService", "RegisterStation", "station_id", params.ID)
	defer func() {
		op.finish(ctx, err, "failed to register station")
		if err == nil {
			op.logger.InfoContext(ctx, "station registered", "type", station.Type)
		}
	}()

	if vErr := validateParams(params); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.stations == nil {
		err = fmt.Errorf("station store not configured")
		return
	}

	station = domain.Station{
		ID:           strings.TrimSpace(params.ID),
		Name:         strings.TrimSpace(params.Name),
		Type:         params.Type,
		Status:       domain.StationAvailable,
		PackagePrice: decimal.Zero,
		Discount:     decimal.Zero,
		UpdatedAt:    s.rt.Now(),
	}
	station, err = s.stations.CreateStation(ctx, station)
	if err != nil {
		err = mapStoreError("station", params.ID, err)
	}
	return
}

// Stations lists the floor ordered by id.
func (s *CatalogService) Stations(ctx context.Context) ([]domain.Station, error) {
	if s == nil || s.stations == nil {
		return nil, nil
	}
	return s.stations.ListStations(ctx)
}
