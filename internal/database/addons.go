package database

import (
	"context"
	"fmt"
	"time"

	"salonbook/internal/models"
)

func (s store) GetAddonLines(ctx context.Context, reservationID int64) ([]models.AddonLine, error) {
	query := `SELECT a.reservation_id, a.service_id, COALESCE(s.name, ''), a.quantity, a.unit_price
			FROM reservation_addons a
			LEFT JOIN services s ON s.id = a.service_id
			WHERE a.reservation_id = ?
			ORDER BY a.created_at, a.service_id`
	rows, err := s.q.QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get addon lines: %w", err)
	}
	defer rows.Close()

	var lines []models.AddonLine
	for rows.Next() {
		var l models.AddonLine
		if err := rows.Scan(&l.ReservationID, &l.ServiceID, &l.Name, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan addon line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// UpsertAddonLine stores the line, replacing quantity and unit price if the
// add-on is already attached.
func (s store) UpsertAddonLine(ctx context.Context, line models.AddonLine) error {
	query := `INSERT INTO reservation_addons (reservation_id, service_id, quantity, unit_price, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(reservation_id, service_id)
			DO UPDATE SET quantity = excluded.quantity, unit_price = excluded.unit_price`
	_, err := s.q.ExecContext(ctx, query, line.ReservationID, line.ServiceID, line.Quantity, line.UnitPrice, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save addon line: %w", err)
	}
	return nil
}

func (s store) DeleteAddonLine(ctx context.Context, reservationID, serviceID int64) error {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM reservation_addons WHERE reservation_id = ? AND service_id = ?`, reservationID, serviceID)
	if err != nil {
		return fmt.Errorf("failed to delete addon line: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete addon line: %w", err)
	}
	if rows == 0 {
		return ErrAddonNotAttached
	}
	return nil
}
