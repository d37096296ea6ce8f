package database

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)
	ErrDraftNotFound       = fmt.Errorf("draft %w", ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("service %w", ErrNotFound)
	ErrClientNotFound      = fmt.Errorf("client %w", ErrNotFound)

	ErrAddonNotAttached = errors.New("addon is not attached to reservation")
	ErrDuplicate        = errors.New("duplicate record")
)
