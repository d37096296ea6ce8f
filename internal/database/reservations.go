package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonbook/internal/models"
)

const reservationColumns = `id, client_id, service_id, date, start_time, end_time, status, reservation_kind,
	service_price, final_price, client_name, client_surname, client_phone, client_email,
	session_id, verification_code, verification_token, client_notes, admin_notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                                  models.Reservation
		clientID                           sql.NullInt64
		dateStr                            string
		status, kind                       string
		name, surname, phone, email        sql.NullString
		sessionID, verifyCode, verifyToken sql.NullString
	)
	err := row.Scan(
		&r.ID, &clientID, &r.ServiceID, &dateStr, &r.StartTime, &r.EndTime, &status, &kind,
		&r.ServicePrice, &r.FinalPrice, &name, &surname, &phone, &email,
		&sessionID, &verifyCode, &verifyToken, &r.ClientNotes, &r.AdminNotes, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Date, err = time.Parse(models.DateFormat, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reservation date %s: %w", dateStr, err)
	}

	r.Lifecycle, err = models.NewLifecycle(models.Status(status), models.Kind(kind))
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}

	if clientID.Valid {
		r.Booker = models.Identified{ClientID: clientID.Int64}
	} else if name.Valid || phone.Valid || email.Valid {
		r.Booker = models.Unidentified{Contact: models.Contact{
			Name:    name.String,
			Surname: surname.String,
			Phone:   phone.String,
			Email:   email.String,
		}}
	}

	r.SessionID = sessionID.String
	r.VerificationCode = verifyCode.String
	r.VerificationToken = verifyToken.String
	return &r, nil
}

// bookerColumns splits a booker into the client_id and inline identity columns.
func bookerColumns(b models.Booker) (clientID sql.NullInt64, name, surname, phone, email sql.NullString) {
	switch v := b.(type) {
	case models.Identified:
		clientID = nullInt64(v.ClientID)
	case models.Unidentified:
		name = nullString(v.Name)
		surname = nullString(v.Surname)
		phone = nullString(v.Phone)
		email = nullString(v.Email)
	}
	return
}

func (s store) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	r.Addons, err = s.GetAddonLines(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s store) GetReservationByToken(ctx context.Context, token string) (*models.Reservation, error) {
	if token == "" {
		return nil, ErrReservationNotFound
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE verification_token = ?`
	r, err := scanReservation(s.q.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation by token: %w", err)
	}
	r.Addons, err = s.GetAddonLines(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// FindDraftBySession returns the open draft of a browser session.
func (s store) FindDraftBySession(ctx context.Context, sessionID string) (*models.Reservation, error) {
	if sessionID == "" {
		return nil, ErrDraftNotFound
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE session_id = ? AND status = ?`
	r, err := scanReservation(s.q.QueryRowContext(ctx, query, sessionID, models.StatusDraft))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find draft: %w", err)
	}
	return r, nil
}

func (s store) InsertReservation(ctx context.Context, r *models.Reservation) error {
	if r.Lifecycle.IsZero() {
		return errors.New("reservation lifecycle is not set")
	}
	clientID, name, surname, phone, email := bookerColumns(r.Booker)

	query := `INSERT INTO reservations (
				client_id, service_id, date, start_time, end_time, status, reservation_kind,
				service_price, final_price, client_name, client_surname, client_phone, client_email,
				session_id, verification_code, verification_token, client_notes, admin_notes,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := s.q.ExecContext(ctx, query,
		clientID, r.ServiceID, r.DateString(), r.StartTime, r.EndTime,
		r.Lifecycle.Status(), r.Lifecycle.Kind(),
		r.ServicePrice, r.FinalPrice, name, surname, phone, email,
		nullString(r.SessionID), nullString(r.VerificationCode), nullString(r.VerificationToken),
		r.ClientNotes, r.AdminNotes, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create reservation: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// UpdateReservation writes every mutable column of r.
func (s store) UpdateReservation(ctx context.Context, r *models.Reservation) error {
	clientID, name, surname, phone, email := bookerColumns(r.Booker)

	query := `UPDATE reservations SET
				client_id = ?, service_id = ?, date = ?, start_time = ?, end_time = ?,
				status = ?, reservation_kind = ?, service_price = ?, final_price = ?,
				client_name = ?, client_surname = ?, client_phone = ?, client_email = ?,
				session_id = ?, verification_code = ?, verification_token = ?,
				client_notes = ?, admin_notes = ?, updated_at = ?
			WHERE id = ?`
	now := time.Now()
	result, err := s.q.ExecContext(ctx, query,
		clientID, r.ServiceID, r.DateString(), r.StartTime, r.EndTime,
		r.Lifecycle.Status(), r.Lifecycle.Kind(), r.ServicePrice, r.FinalPrice,
		name, surname, phone, email,
		nullString(r.SessionID), nullString(r.VerificationCode), nullString(r.VerificationToken),
		r.ClientNotes, r.AdminNotes, now, r.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to update reservation: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if rows == 0 {
		return ErrReservationNotFound
	}
	r.UpdatedAt = now
	return nil
}

// DeleteReservation removes the reservation and its add-on lines.
func (s store) DeleteReservation(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM reservation_addons WHERE reservation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reservation addons: %w", err)
	}
	result, err := s.q.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if rows == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// ListReservations returns reservations dated within [from, to], drafts included.
func (s store) ListReservations(ctx context.Context, from, to time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
			WHERE date >= ? AND date <= ? ORDER BY date ASC, start_time ASC, id ASC`
	rows, err := s.q.QueryContext(ctx, query, from.Format(models.DateFormat), to.Format(models.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

// ListBusySlots returns the intervals held on date by reservations whose
// status blocks the calendar. excludeID (0 for none) skips one reservation.
func (s store) ListBusySlots(ctx context.Context, date time.Time, excludeID int64) ([]models.Slot, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(models.NonBlockingStatuses)), ", ")
	query := `SELECT start_time, end_time FROM reservations
			WHERE date = ? AND id != ? AND status NOT IN (` + placeholders + `)
			ORDER BY start_time`

	args := []interface{}{date.Format(models.DateFormat), excludeID}
	for _, st := range models.NonBlockingStatuses {
		args = append(args, st)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		var slot models.Slot
		if err := rows.Scan(&slot.Start, &slot.End); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
