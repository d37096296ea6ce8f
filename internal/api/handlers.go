package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/export"
	"salonbook/internal/models"
	"salonbook/internal/service"
)

type draftRequest struct {
	SessionID     string `json:"session_id"`
	ClientName    string `json:"client_name"`
	ClientSurname string `json:"client_surname"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	ServiceID     int64  `json:"service_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Notes         string `json:"notes"`
}

type bookingRequest struct {
	ClientName       string `json:"client_name"`
	ClientSurname    string `json:"client_surname"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	ServiceID        int64  `json:"service_id"`
	ServiceVariantID int64  `json:"service_variant_id"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	Notes            string `json:"notes"`
	SessionID        string `json:"session_id"`
}

type statusRequest struct {
	Status     models.Status `json:"status"`
	AdminNotes string        `json:"admin_notes"`
}

type addonRequest struct {
	ServiceID int64 `json:"service_id"`
	Quantity  int   `json:"quantity"`
}

type closureRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type closureResponse struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func parseDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	d, err := time.Parse(models.DateFormat, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format; expected YYYY-MM-DD", field)
	}
	return d, nil
}

func parseInt64(raw, field string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", field)
	}
	return v, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	return parseInt64(r.PathValue(name), name)
}

// parsePeriod reads from/to query params; to defaults to from.
func parsePeriod(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if from, err = parseDate(q.Get("from"), "from"); err != nil {
		return from, to, err
	}
	if q.Get("to") == "" {
		return from, from, nil
	}
	to, err = parseDate(q.Get("to"), "to")
	return from, to, err
}

func (s *HTTPServer) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := service.DraftInput{
		SessionID: req.SessionID,
		Contact:   models.Contact{Name: req.ClientName, Surname: req.ClientSurname, Phone: req.Phone, Email: req.Email},
		ServiceID: req.ServiceID,
		Notes:     req.Notes,
	}
	if strings.TrimSpace(req.Date) != "" {
		d, err := parseDate(req.Date, "date")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Date = d
	}
	if strings.TrimSpace(req.StartTime) != "" {
		start, err := models.ParseClock(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.StartTime = &start
	}

	id, err := s.reservations.CreateDraft(r.Context(), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.reservations.CreateReservation(r.Context(), service.BookingInput{
		Contact:          models.Contact{Name: req.ClientName, Surname: req.ClientSurname, Phone: req.Phone, Email: req.Email},
		ServiceID:        req.ServiceID,
		ServiceVariantID: req.ServiceVariantID,
		Date:             date,
		StartTime:        start,
		Notes:            req.Notes,
		SessionID:        req.SessionID,
	})
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationResponse(res, false))
}

func (s *HTTPServer) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.reservations.VerifyByCode(r.Context(), id, req.Code)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res, false))
}

func (s *HTTPServer) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	res, err := s.reservations.VerifyByToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res, false))
}

func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDate(q.Get("date"), "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := models.ParseClock(q.Get("start_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	serviceID, err := parseInt64(q.Get("service_id"), "service_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.reservations.CheckAvailability(r.Context(), date, start, serviceID)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDate(q.Get("date"), "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	serviceID, err := parseInt64(q.Get("service_id"), "service_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := s.reservations.AvailableSlots(r.Context(), date, serviceID)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.Format(models.DateFormat), "slots": slots})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.catalog.GetActiveServices(r.Context())
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if services == nil {
		services = []models.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleVariants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.catalog.GetActiveService(r.Context(), id); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	variants := s.catalog.Variants(r.Context(), id)
	if variants == nil {
		variants = []models.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"variants": variants})
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.reservations.ListByDate(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": newReservationList(list)})
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.reservations.GetReservation(r.Context(), id)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res, true))
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.reservations.UpdateStatus(r.Context(), id, req.Status, req.AdminNotes)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res, true))
}

func (s *HTTPServer) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.reservations.DeleteReservation(r.Context(), id); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleAddAddon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req addonRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	res, err := s.reservations.AddAddon(r.Context(), id, req.ServiceID, req.Quantity)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res, true))
}

func (s *HTTPServer) handleRemoveAddon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	serviceID, err := pathID(r, "service_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.reservations.RemoveAddon(r.Context(), id, serviceID)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res, true))
}

func (s *HTTPServer) handleConvertDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.reservations.ConvertDraftToReservation(r.Context(), id)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(res, true))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, service.ErrInvalidRange.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	if err := s.exporter.Write(r.Context(), w, from, to); err != nil {
		// headers are not committed until the workbook is written
		w.Header().Del("Content-Disposition")
		writeServiceError(w, s.logger, err)
	}
}

func (s *HTTPServer) handleListClosures(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	closures, err := s.catalog.ListClosures(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	out := make([]closureResponse, 0, len(closures))
	for _, c := range closures {
		out = append(out, closureResponse{Date: c.Date.Format(models.DateFormat), Reason: c.Reason})
	}
	writeJSON(w, http.StatusOK, map[string]any{"closures": out})
}

func (s *HTTPServer) handleAddClosure(w http.ResponseWriter, r *http.Request) {
	var req closureRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.catalog.AddClosure(r.Context(), date, req.Reason); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, closureResponse{Date: req.Date, Reason: strings.TrimSpace(req.Reason)})
}

func (s *HTTPServer) handleRemoveClosure(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"), "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.catalog.RemoveClosure(r.Context(), date); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
