package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"salonbook/internal/database"
	"salonbook/internal/models"
	"salonbook/internal/service"

	"github.com/rs/zerolog"
)

type reservationResponse struct {
	ID           int64              `json:"id"`
	ServiceID    int64              `json:"service_id"`
	Date         string             `json:"date"`
	StartTime    models.Clock       `json:"start_time"`
	EndTime      models.Clock       `json:"end_time"`
	Status       models.Status      `json:"status"`
	Kind         models.Kind        `json:"kind"`
	ServicePrice int64              `json:"service_price"`
	FinalPrice   int64              `json:"final_price"`
	ClientID     int64              `json:"client_id,omitempty"`
	Contact      *models.Contact    `json:"contact,omitempty"`
	ClientNotes  string             `json:"client_notes,omitempty"`
	AdminNotes   string             `json:"admin_notes,omitempty"`
	Addons       []models.AddonLine `json:"addons"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// newReservationResponse never exposes the verification secrets.
func newReservationResponse(r *models.Reservation, admin bool) reservationResponse {
	resp := reservationResponse{
		ID:           r.ID,
		ServiceID:    r.ServiceID,
		Date:         r.DateString(),
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Status:       r.Status(),
		Kind:         r.Lifecycle.Kind(),
		ServicePrice: r.ServicePrice,
		FinalPrice:   r.FinalPrice,
		ClientID:     r.ClientID(),
		ClientNotes:  r.ClientNotes,
		Addons:       r.Addons,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if resp.Addons == nil {
		resp.Addons = []models.AddonLine{}
	}
	if c, ok := r.Contact(); ok {
		resp.Contact = &c
	}
	if admin {
		resp.AdminNotes = r.AdminNotes
	}
	return resp
}

func newReservationList(rs []*models.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, newReservationResponse(r, true))
	}
	return out
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, service.ErrAddonNotFound),
		errors.Is(err, database.ErrAddonNotAttached):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, service.ErrTerminalStatus),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, database.ErrDuplicate):
		return http.StatusConflict
	case service.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError hides infrastructure failures behind a generic message.
func writeServiceError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}
