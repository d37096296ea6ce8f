package database

import (
	"context"
	"fmt"
	"time"

	"salonbook/internal/models"
)

// AddClosure records a full-day closure; adding the same date again updates the reason.
func (s store) AddClosure(ctx context.Context, c *models.Closure) error {
	query := `INSERT INTO closures (date, reason, created_at) VALUES (?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET reason = excluded.reason`
	now := time.Now()
	if _, err := s.q.ExecContext(ctx, query, c.Date.Format(models.DateFormat), c.Reason, now); err != nil {
		return fmt.Errorf("failed to add closure: %w", err)
	}
	c.CreatedAt = now
	return nil
}

func (s store) RemoveClosure(ctx context.Context, date time.Time) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM closures WHERE date = ?`, date.Format(models.DateFormat))
	if err != nil {
		return fmt.Errorf("failed to remove closure: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("closure %w", ErrNotFound)
	}
	return nil
}

func (s store) IsClosedOn(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM closures WHERE date = ?`, date.Format(models.DateFormat)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check closure: %w", err)
	}
	return count > 0, nil
}

func (s store) ListClosures(ctx context.Context, from, to time.Time) ([]models.Closure, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT date, reason, created_at FROM closures WHERE date >= ? AND date <= ? ORDER BY date`,
		from.Format(models.DateFormat), to.Format(models.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to list closures: %w", err)
	}
	defer rows.Close()

	var closures []models.Closure
	for rows.Next() {
		var (
			c       models.Closure
			dateStr string
		)
		if err := rows.Scan(&dateStr, &c.Reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		c.Date, _ = time.Parse(models.DateFormat, dateStr)
		closures = append(closures, c)
	}
	return closures, rows.Err()
}
