// Package google mirrors reservations into a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"salonbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const timestampFormat = "2006-01-02 15:04:05"

// ErrRowNotFound is returned when no row carries the reservation id.
var ErrRowNotFound = errors.New("reservation row not found")

// ServiceNamer resolves a service id to a display name.
type ServiceNamer func(id int64) string

// SheetsClient keeps one row per reservation, keyed by the id in column A.
type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	names         ServiceNamer
	now           func() time.Time

	cacheMu  sync.RWMutex
	rowCache map[int64]int
}

// NewSheetsClient authenticates with a service account key file.
func NewSheetsClient(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, names ServiceNamer) (*SheetsClient, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsClient(srv, spreadsheetID, sheetName, names), nil
}

func newSheetsClient(srv *sheets.Service, spreadsheetID, sheetName string, names ServiceNamer) *SheetsClient {
	if names == nil {
		names = func(id int64) string { return "#" + strconv.FormatInt(id, 10) }
	}
	return &SheetsClient{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		names:         names,
		now:           time.Now,
		rowCache:      make(map[int64]int),
	}
}

// ServiceAccountEmail reads client_email from a key file, so operators know
// which account the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

func (s *SheetsClient) rng(cells string) string {
	return s.sheetName + "!" + cells
}

// TestConnection reads the header cell.
func (s *SheetsClient) TestConnection(ctx context.Context) error {
	if _, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// WarmUpCache rebuilds the id to row index from column A.
func (s *SheetsClient) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
	for i, row := range resp.Values {
		if id := cellID(row); id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertReservation rewrites the reservation row or appends a new one.
func (s *SheetsClient) UpsertReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return errors.New("reservation is nil")
	}

	rowIdx, err := s.FindReservationRow(ctx, r.ID)
	if errors.Is(err, ErrRowNotFound) {
		return s.appendReservation(ctx, r)
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rowRange(rowIdx), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(r)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *SheetsClient) appendReservation(ctx context.Context, r *models.Reservation) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(r)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row := rowFromRange(resp.Updates.UpdatedRange); row > 0 {
			s.setCachedRow(r.ID, row)
		}
	}
	return nil
}

// DeleteReservationRow clears the reservation row. A missing row is not an error.
func (s *SheetsClient) DeleteReservationRow(ctx context.Context, reservationID int64) error {
	rowIdx, err := s.FindReservationRow(ctx, reservationID)
	if errors.Is(err, ErrRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rowRange(rowIdx), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err == nil {
		s.deleteCachedRow(reservationID)
	}
	return err
}

// UpdateReservationStatus rewrites the status and updated-at cells in one batch.
func (s *SheetsClient) UpdateReservationStatus(ctx context.Context, reservationID int64, status models.Status) error {
	rowIdx, err := s.FindReservationRow(ctx, reservationID)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{Range: s.rng(fmt.Sprintf("F%d", rowIdx)), Values: [][]interface{}{{string(status)}}},
			{Range: s.rng(fmt.Sprintf("M%d", rowIdx)), Values: [][]interface{}{{s.now().Format(timestampFormat)}}},
		},
	}
	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return err
}

// FindReservationRow returns the 1-based row of a reservation, scanning
// column A on a cache miss.
func (s *SheetsClient) FindReservationRow(ctx context.Context, reservationID int64) (int, error) {
	if reservationID == 0 {
		return 0, errors.New("reservation id is required")
	}
	if row, ok := s.getCachedRow(reservationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellID(row) == reservationID {
			s.setCachedRow(reservationID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

func (s *SheetsClient) rowRange(row int) string {
	return s.rng(fmt.Sprintf("A%d:M%d", row, row))
}

// rowValues lays out columns A..M.
func (s *SheetsClient) rowValues(r *models.Reservation) []interface{} {
	client := ""
	phone := ""
	if c, ok := r.Contact(); ok {
		client = strings.TrimSpace(c.Name + " " + c.Surname)
		phone = c.Phone
	} else if id := r.ClientID(); id != 0 {
		client = "client #" + strconv.FormatInt(id, 10)
	}

	return []interface{}{
		r.ID,
		r.DateString(),
		r.StartTime.String(),
		r.EndTime.String(),
		s.names(r.ServiceID),
		string(r.Status()),
		string(r.Lifecycle.Kind()),
		client,
		phone,
		r.ServicePrice,
		r.FinalPrice,
		r.ClientNotes,
		r.UpdatedAt.Format(timestampFormat),
	}
}

func (s *SheetsClient) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsClient) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsClient) deleteCachedRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

func cellID(row []interface{}) int64 {
	if len(row) == 0 {
		return 0
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id
	}
	return 0
}

// rowFromRange extracts the first row number of "Sheet!A10:M10".
func rowFromRange(a1 string) int {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	row, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return row
}
