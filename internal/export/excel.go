// Package export renders reservations into xlsx workbooks for staff.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	reservationsSheet = "Reservations"
	summarySheet      = "Summary"
)

var headers = []string{"ID", "Date", "Start", "End", "Service", "Status", "Kind", "Client", "Phone", "Service price", "Add-ons", "Total", "Client notes", "Admin notes"}

var statusColors = map[models.Status]string{
	models.StatusPending:    "#FFF2CC",
	models.StatusConfirmed:  "#DDEBF7",
	models.StatusInProgress: "#DDEBF7",
	models.StatusCompleted:  "#E2EFDA",
	models.StatusCancelled:  "#F8CBAD",
	models.StatusNoShow:     "#F8CBAD",
}

// Lister is the storage an Exporter reads from.
type Lister interface {
	ListReservations(ctx context.Context, from, to time.Time) ([]*models.Reservation, error)
}

type ServiceNamer func(id int64) string

type Exporter struct {
	store  Lister
	names  ServiceNamer
	dir    string
	logger *zerolog.Logger
}

func NewExporter(store Lister, names ServiceNamer, dir string, logger *zerolog.Logger) *Exporter {
	if names == nil {
		names = func(id int64) string { return "#" + strconv.FormatInt(id, 10) }
	}
	return &Exporter{store: store, names: names, dir: dir, logger: logger}
}

// Write streams a workbook with every non-draft reservation in [from, to].
func (e *Exporter) Write(ctx context.Context, w io.Writer, from, to time.Time) error {
	f, err := e.build(ctx, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveFile writes the workbook into the export directory and returns its path.
func (e *Exporter) SaveFile(ctx context.Context, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(ctx, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(from, to))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func FileName(from, to time.Time) string {
	return fmt.Sprintf("reservations_%s_to_%s.xlsx", from.Format(models.DateFormat), to.Format(models.DateFormat))
}

func (e *Exporter) build(ctx context.Context, from, to time.Time) (*excelize.File, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid period %s - %s", from.Format(models.DateFormat), to.Format(models.DateFormat))
	}

	all, err := e.store.ListReservations(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("error getting reservations: %w", err)
	}
	reservations := make([]*models.Reservation, 0, len(all))
	for _, r := range all {
		if r.Status() != models.StatusDraft {
			reservations = append(reservations, r)
		}
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(reservationsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	e.writeReservations(f, reservations, from, to)
	if err := e.writeSummary(f, reservations); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func (e *Exporter) writeReservations(f *excelize.File, reservations []*models.Reservation, from, to time.Time) {
	lastCol, _ := excelize.ColumnNumberToName(len(headers))

	_ = f.SetCellValue(reservationsSheet, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))
	_ = f.MergeCell(reservationsSheet, "A1", lastCol+"1")
	if title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err == nil {
		_ = f.SetCellStyle(reservationsSheet, "A1", "A1", title)
	}

	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	_ = f.SetSheetRow(reservationsSheet, "A2", &headerRow)
	if hdr, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9D9D9"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	}); err == nil {
		_ = f.SetCellStyle(reservationsSheet, "A2", lastCol+"2", hdr)
	}

	styles := make(map[models.Status]int, len(statusColors))
	for status, color := range statusColors {
		if id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		}); err == nil {
			styles[status] = id
		}
	}

	for i, r := range reservations {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := e.rowValues(r)
		_ = f.SetSheetRow(reservationsSheet, cell, &values)

		statusCell, _ := excelize.CoordinatesToCellName(6, row)
		if id, ok := styles[r.Status()]; ok {
			_ = f.SetCellStyle(reservationsSheet, statusCell, statusCell, id)
		}
	}

	_ = f.SetColWidth(reservationsSheet, "A", "D", 12)
	_ = f.SetColWidth(reservationsSheet, "E", "I", 20)
	_ = f.SetColWidth(reservationsSheet, "J", "L", 14)
	_ = f.SetColWidth(reservationsSheet, "M", lastCol, 30)
	_ = f.SetPanes(reservationsSheet, &excelize.Panes{Freeze: true, YSplit: 2, TopLeftCell: "A3", ActivePane: "bottomLeft"})
}

func (e *Exporter) rowValues(r *models.Reservation) []interface{} {
	var client, phone string
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
		e.names(r.ServiceID),
		string(r.Status()),
		string(r.Lifecycle.Kind()),
		client,
		phone,
		r.ServicePrice,
		r.FinalPrice - r.ServicePrice,
		r.FinalPrice,
		r.ClientNotes,
		r.AdminNotes,
	}
}

type daySummary struct {
	date      string
	total     int
	cancelled int
	revenue   int64
}

// writeSummary adds per-day counts. Revenue counts completed reservations only.
func (e *Exporter) writeSummary(f *excelize.File, reservations []*models.Reservation) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	var days []*daySummary
	byDate := make(map[string]*daySummary)
	for _, r := range reservations {
		key := r.DateString()
		d, ok := byDate[key]
		if !ok {
			d = &daySummary{date: key}
			byDate[key] = d
			days = append(days, d)
		}
		d.total++
		switch r.Status() {
		case models.StatusCancelled, models.StatusNoShow:
			d.cancelled++
		case models.StatusCompleted:
			d.revenue += r.FinalPrice
		}
	}

	header := []interface{}{"Date", "Reservations", "Cancelled / no-show", "Revenue"}
	_ = f.SetSheetRow(summarySheet, "A1", &header)

	var totalCount, totalCancelled int
	var totalRevenue int64
	for i, d := range days {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{d.date, d.total, d.cancelled, d.revenue}
		_ = f.SetSheetRow(summarySheet, cell, &row)
		totalCount += d.total
		totalCancelled += d.cancelled
		totalRevenue += d.revenue
	}

	cell, _ := excelize.CoordinatesToCellName(1, len(days)+2)
	totals := []interface{}{"Total", totalCount, totalCancelled, totalRevenue}
	_ = f.SetSheetRow(summarySheet, cell, &totals)
	_ = f.SetColWidth(summarySheet, "A", "D", 20)
	return nil
}
