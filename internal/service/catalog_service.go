package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService serves the active service list from memory and refreshes it
// after every admin change.
type CatalogService struct {
	repo     domain.Repository
	logger   *zerolog.Logger
	services []models.Service
	byID     map[int64]models.Service
	mu       sync.RWMutex
}

func NewCatalogService(repo domain.Repository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger,
		byID:   make(map[int64]models.Service),
	}
}

func (s *CatalogService) GetActiveServices(ctx context.Context) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Service(nil), s.services...), nil
}

// GetActiveService returns an active catalog entry by id.
func (s *CatalogService) GetActiveService(ctx context.Context, id int64) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	return &svc, nil
}

// Variants lists the active variants of a base service.
func (s *CatalogService) Variants(ctx context.Context, parentID int64) []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Service
	for _, svc := range s.services {
		if svc.ParentID == parentID && svc.Type == models.ServiceVariant {
			out = append(out, svc)
		}
	}
	return out
}

func (s *CatalogService) CreateService(ctx context.Context, svc *models.Service) error {
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *CatalogService) UpdateService(ctx context.Context, svc *models.Service) error {
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.repo.UpdateService(ctx, svc); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *CatalogService) DeactivateService(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateService(ctx, id); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Refresh reloads active services from storage.
func (s *CatalogService) Refresh(ctx context.Context) error {
	list, err := s.repo.GetActiveServices(ctx)
	if err != nil {
		return err
	}

	services := make([]models.Service, 0, len(list))
	byID := make(map[int64]models.Service, len(list))
	for _, svc := range list {
		services = append(services, *svc)
		byID[svc.ID] = *svc
	}
	sort.SliceStable(services, func(i, j int) bool { return services[i].SortOrder < services[j].SortOrder })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = services
	s.byID = byID
	s.logger.Debug().Int("count", len(services)).Msg("service catalog refreshed")
	return nil
}

// AddClosure marks a whole day as closed.
func (s *CatalogService) AddClosure(ctx context.Context, date time.Time, reason string) error {
	return s.repo.AddClosure(ctx, &models.Closure{Date: date, Reason: strings.TrimSpace(reason)})
}

func (s *CatalogService) RemoveClosure(ctx context.Context, date time.Time) error {
	return s.repo.RemoveClosure(ctx, date)
}

func (s *CatalogService) ListClosures(ctx context.Context, from, to time.Time) ([]models.Closure, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	return s.repo.ListClosures(ctx, from, to)
}

func validateService(svc *models.Service) error {
	switch {
	case strings.TrimSpace(svc.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidService)
	case !svc.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidService, svc.Type)
	case svc.Price < 0 || svc.Duration < 0:
		return fmt.Errorf("%w: negative price or duration", ErrInvalidService)
	case svc.Type == models.ServiceVariant && svc.ParentID == 0:
		return fmt.Errorf("%w: variant needs a parent service", ErrInvalidService)
	case (svc.Type == models.ServiceBase || svc.Type == models.ServicePackage) && svc.Duration == 0:
		return fmt.Errorf("%w: bookable service needs a duration", ErrInvalidService)
	}
	return nil
}
