package domain

import (
	"context"
	"time"

	"salonbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SlotReader is what the availability engine needs from storage.
type SlotReader interface {
	ListBusySlots(ctx context.Context, date time.Time, excludeID int64) ([]models.Slot, error)
	IsClosedOn(ctx context.Context, date time.Time) (bool, error)
}

// ReservationStore is the set of reads and writes that must share one
// transaction when a reservation changes. Both the database handle and an
// open transaction implement it.
type ReservationStore interface {
	SlotReader

	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetReservationByToken(ctx context.Context, token string) (*models.Reservation, error)
	FindDraftBySession(ctx context.Context, sessionID string) (*models.Reservation, error)
	InsertReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservation(ctx context.Context, r *models.Reservation) error
	DeleteReservation(ctx context.Context, id int64) error
	ListReservations(ctx context.Context, from, to time.Time) ([]*models.Reservation, error)

	GetAddonLines(ctx context.Context, reservationID int64) ([]models.AddonLine, error)
	UpsertAddonLine(ctx context.Context, line models.AddonLine) error
	DeleteAddonLine(ctx context.Context, reservationID, serviceID int64) error

	GetService(ctx context.Context, id int64) (*models.Service, error)
	FindClient(ctx context.Context, contact models.Contact) (*models.Client, error)
	CreateClient(ctx context.Context, client *models.Client) error
}

// Repository is the full persistence surface used by services.
type Repository interface {
	ReservationStore

	WithTx(ctx context.Context, fn func(ReservationStore) error) error

	GetActiveServices(ctx context.Context) ([]*models.Service, error)
	CreateService(ctx context.Context, svc *models.Service) error
	UpdateService(ctx context.Context, svc *models.Service) error
	DeactivateService(ctx context.Context, id int64) error

	AddClosure(ctx context.Context, closure *models.Closure) error
	RemoveClosure(ctx context.Context, date time.Time) error
	ListClosures(ctx context.Context, from, to time.Time) ([]models.Closure, error)
}

// KeyedLimiter counts hits per key inside a TTL window.
type KeyedLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sync task types accepted by SyncWorker.EnqueueTask.
const (
	SyncUpsert       = "upsert"
	SyncDelete       = "delete"
	SyncUpdateStatus = "update_status"
)

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, reservation *models.Reservation, status string) error
}

// SheetsWriter mirrors reservations into a spreadsheet.
type SheetsWriter interface {
	UpsertReservation(ctx context.Context, r *models.Reservation) error
	DeleteReservationRow(ctx context.Context, reservationID int64) error
	UpdateReservationStatus(ctx context.Context, reservationID int64, status models.Status) error
}
