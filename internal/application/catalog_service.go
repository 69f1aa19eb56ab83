package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/roombooking/internal/api"
)

// CatalogAPI exposes the building, room, and user directory endpoints of the
// booking service.
type CatalogAPI interface {
	Buildings(ctx context.Context) ([]api.Building, error)
	CreateBuilding(ctx context.Context, input api.BuildingInput) (api.Building, error)
	Rooms(ctx context.Context, buildingID int64) ([]api.Room, error)
	Users(ctx context.Context) ([]api.User, error)
}

// CatalogService provides read-mostly access to buildings and rooms, plus the
// administrative flows of the admin panel: building creation and the user
// directory.
type CatalogService struct {
	client CatalogAPI
	roles  RoleSource
	logger *slog.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(client CatalogAPI, roles RoleSource) *CatalogService {
	return NewCatalogServiceWithLogger(client, roles, nil)
}

// NewCatalogServiceWithLogger constructs a CatalogService with a specified logger.
func NewCatalogServiceWithLogger(client CatalogAPI, roles RoleSource, logger *slog.Logger) *CatalogService {
	return &CatalogService{client: client, roles: roles, logger: defaultLogger(logger)}
}

func (s *CatalogService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CatalogService", operation, attrs...)
}

func (s *CatalogService) principal() (Principal, error) {
	if s.roles == nil {
		return Principal{}, ErrNotAuthenticated
	}
	principal, ok := s.roles.Principal()
	if !ok {
		return Principal{}, ErrNotAuthenticated
	}
	return principal, nil
}

// Buildings lists every building.
func (s *CatalogService) Buildings(ctx context.Context) ([]api.Building, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("catalog API not configured")
	}
	if _, err := s.principal(); err != nil {
		return nil, err
	}
	buildings, err := s.client.Buildings(ctx)
	if err != nil {
		s.loggerWith(ctx, "Buildings").ErrorContext(ctx, "listing failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return buildings, nil
}

// Rooms lists rooms, optionally narrowed to one building.
func (s *CatalogService) Rooms(ctx context.Context, buildingID int64) ([]api.Room, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("catalog API not configured")
	}
	if _, err := s.principal(); err != nil {
		return nil, err
	}
	rooms, err := s.client.Rooms(ctx, buildingID)
	if err != nil {
		s.loggerWith(ctx, "Rooms", "building_id", buildingID).ErrorContext(ctx, "listing failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return rooms, nil
}

// CreateBuilding registers a new building. Admin only; the service re-checks.
func (s *CatalogService) CreateBuilding(ctx context.Context, input api.BuildingInput) (building api.Building, err error) {
	if s == nil || s.client == nil {
		err = fmt.Errorf("catalog API not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateBuilding", "name", input.Name)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "building creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("building_id", building.ID).InfoContext(ctx, "building created")
	}()

	principal, err := s.principal()
	if err != nil {
		return api.Building{}, err
	}
	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return api.Building{}, err
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if strings.TrimSpace(input.Address) == "" {
		vErr.add("address", "address is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return api.Building{}, err
	}

	return s.client.CreateBuilding(ctx, input)
}

// Users lists all accounts for the admin directory. Admin only.
func (s *CatalogService) Users(ctx context.Context) ([]api.User, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("catalog API not configured")
	}
	principal, err := s.principal()
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	users, err := s.client.Users(ctx)
	if err != nil {
		s.loggerWith(ctx, "Users").ErrorContext(ctx, "listing failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return users, nil
}
