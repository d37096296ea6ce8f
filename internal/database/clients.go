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

const clientColumns = `id, name, surname, phone, email, created_at, updated_at`

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Surname, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindClient matches an existing client by phone and name, or by email.
// Phone matches win over email matches.
func (s store) FindClient(ctx context.Context, contact models.Contact) (*models.Client, error) {
	phone := strings.TrimSpace(contact.Phone)
	name := strings.TrimSpace(contact.Name)
	email := strings.TrimSpace(contact.Email)

	query := `SELECT ` + clientColumns + ` FROM clients
			WHERE (? <> '' AND phone = ? AND lower(name) = lower(?))
			   OR (? <> '' AND lower(email) = lower(?))
			ORDER BY CASE WHEN phone = ? THEN 0 ELSE 1 END, id
			LIMIT 1`
	c, err := scanClient(s.q.QueryRowContext(ctx, query, phone, phone, name, email, email, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	return c, nil
}

func (s store) CreateClient(ctx context.Context, c *models.Client) error {
	query := `INSERT INTO clients (name, surname, phone, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := s.q.ExecContext(ctx, query,
		strings.TrimSpace(c.Name),
		strings.TrimSpace(c.Surname),
		strings.TrimSpace(c.Phone),
		strings.TrimSpace(c.Email),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (s store) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	c, err := scanClient(s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}
