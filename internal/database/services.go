package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"salonbook/internal/models"
)

// serviceCache keeps catalog entries in memory for a limited time; it is
// shared by DB and its transactions. Writes through the store refresh it.
type serviceCache struct {
	mu       sync.RWMutex
	services map[int64]cachedService
	ttl      time.Duration
}

type cachedService struct {
	svc      models.Service
	cachedAt time.Time
}

func newServiceCache() *serviceCache {
	return &serviceCache{services: make(map[int64]cachedService), ttl: models.ServicesCacheTTL}
}

func (c *serviceCache) get(id int64) (*models.Service, bool) {
	c.mu.RLock()
	entry, ok := c.services[id]
	c.mu.RUnlock()
	if !ok || (c.ttl > 0 && time.Since(entry.cachedAt) > c.ttl) {
		return nil, false
	}
	svc := entry.svc
	return &svc, true
}

func (c *serviceCache) put(svc models.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[svc.ID] = cachedService{svc: svc, cachedAt: time.Now()}
}

func (c *serviceCache) replace(services []models.Service) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = make(map[int64]cachedService, len(services))
	for _, svc := range services {
		c.services[svc.ID] = cachedService{svc: svc, cachedAt: now}
	}
}

func (c *serviceCache) invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.services, id)
}

func (c *serviceCache) snapshot() []models.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	services := make([]models.Service, 0, len(c.services))
	for _, entry := range c.services {
		services = append(services, entry.svc)
	}
	return services
}

const serviceColumns = `id, name, description, type, parent_id, price, duration, sort_order, is_active, created_at, updated_at`

func scanService(row rowScanner) (*models.Service, error) {
	var (
		svc      models.Service
		svcType  string
		parentID sql.NullInt64
	)
	err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svcType, &parentID,
		&svc.Price, &svc.Duration, &svc.SortOrder, &svc.IsActive, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	svc.Type = models.ServiceType(svcType)
	svc.ParentID = parentID.Int64
	return &svc, nil
}

// SyncServices upserts the catalog seed and refreshes the cache.
func (db *DB) SyncServices(ctx context.Context, services []models.Service) error {
	query := `INSERT INTO services (id, name, description, type, parent_id, price, duration, sort_order, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, description = excluded.description, type = excluded.type,
				parent_id = excluded.parent_id, price = excluded.price, duration = excluded.duration,
				sort_order = excluded.sort_order, is_active = excluded.is_active, updated_at = excluded.updated_at`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, svc := range services {
		_, err := tx.ExecContext(ctx, query,
			svc.ID, svc.Name, svc.Description, svc.Type, nullInt64(svc.ParentID),
			svc.Price, svc.Duration, svc.SortOrder, svc.IsActive, now, now)
		if err != nil {
			return fmt.Errorf("failed to sync service %d: %w", svc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit services: %w", err)
	}

	return db.ReloadServices(ctx)
}

// ReloadServices refills the cache from the services table.
func (db *DB) ReloadServices(ctx context.Context) error {
	rows, err := db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services`)
	if err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}

	db.services.replace(services)
	db.logger.Debug().Int("count", len(services)).Msg("service cache reloaded")
	return nil
}

// GetService returns a service by id, inactive ones included.
func (s store) GetService(ctx context.Context, id int64) (*models.Service, error) {
	if svc, ok := s.services.get(id); ok {
		return svc, nil
	}

	svc, err := scanService(s.q.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	s.services.put(*svc)
	return svc, nil
}

func (s store) GetActiveServices(ctx context.Context) ([]*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE is_active = 1 ORDER BY sort_order, id`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s store) CreateService(ctx context.Context, svc *models.Service) error {
	query := `INSERT INTO services (name, description, type, parent_id, price, duration, sort_order, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := s.q.ExecContext(ctx, query,
		svc.Name, svc.Description, svc.Type, nullInt64(svc.ParentID),
		svc.Price, svc.Duration, svc.SortOrder, svc.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	svc.ID = id
	svc.CreatedAt = now
	svc.UpdatedAt = now

	s.services.put(*svc)
	return nil
}

func (s store) UpdateService(ctx context.Context, svc *models.Service) error {
	query := `UPDATE services SET name = ?, description = ?, type = ?, parent_id = ?, price = ?,
				duration = ?, sort_order = ?, is_active = ?, updated_at = ?
			WHERE id = ?`
	now := time.Now()
	result, err := s.q.ExecContext(ctx, query,
		svc.Name, svc.Description, svc.Type, nullInt64(svc.ParentID), svc.Price,
		svc.Duration, svc.SortOrder, svc.IsActive, now, svc.ID)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrServiceNotFound
	}
	svc.UpdatedAt = now
	s.services.put(*svc)
	return nil
}

func (s store) DeactivateService(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrServiceNotFound
	}
	s.services.invalidate(id)
	return nil
}

// CachedServices returns a snapshot of the cache sorted like the catalog.
func (db *DB) CachedServices() []models.Service {
	services := db.services.snapshot()
	sort.Slice(services, func(i, j int) bool {
		if services[i].SortOrder != services[j].SortOrder {
			return services[i].SortOrder < services[j].SortOrder
		}
		return services[i].ID < services[j].ID
	})
	return services
}
