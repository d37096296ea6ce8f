// Package availability answers whether a time range on a given day is free
// and lists the free slots a service fits into.
package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// OpeningHours reports the open ranges of a weekday.
type OpeningHours interface {
	RangesFor(weekday time.Weekday) []config.TimeRange
}

// WeeklySchedule is an OpeningHours backed by the salon config.
type WeeklySchedule map[time.Weekday][]config.TimeRange

// NewWeeklySchedule converts weekday-name keyed config into a schedule.
func NewWeeklySchedule(hours map[string][]config.TimeRange) WeeklySchedule {
	schedule := make(WeeklySchedule, len(hours))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if ranges, ok := hours[strings.ToLower(wd.String())]; ok {
			schedule[wd] = ranges
		}
	}
	return schedule
}

func (w WeeklySchedule) RangesFor(weekday time.Weekday) []config.TimeRange {
	return w[weekday]
}

// Store is the storage an engine reads through.
type Store interface {
	domain.SlotReader
	GetService(ctx context.Context, id int64) (*models.Service, error)
}

// Engine checks slots against the reservations held in storage.
type Engine struct {
	store  Store
	hours  OpeningHours
	step   int
	logger *zerolog.Logger
}

func NewEngine(store Store, hours OpeningHours, stepMinutes int, logger *zerolog.Logger) *Engine {
	if stepMinutes <= 0 {
		stepMinutes = int(models.SlotStep / time.Minute)
	}
	return &Engine{store: store, hours: hours, step: stepMinutes, logger: logger}
}

// WithStore returns a copy of the engine reading through store, typically an
// open transaction, so that a check and the write that follows it agree.
func (e *Engine) WithStore(store Store) *Engine {
	clone := *e
	clone.store = store
	return &clone
}

// IsAvailable reports whether [start, end) on date is free of any reservation
// that holds its slot. excludeID (0 for none) is ignored, so a reservation
// can be checked against everyone but itself.
func (e *Engine) IsAvailable(ctx context.Context, date time.Time, start, end models.Clock, excludeID int64) (bool, error) {
	if end <= start {
		return false, fmt.Errorf("invalid range %s-%s", start, end)
	}

	busy, err := e.store.ListBusySlots(ctx, date, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}

	free := isFree(busy, models.Slot{Start: start, End: end})
	metrics.IncAvailability(free)
	e.logger.Debug().
		Str("date", date.Format(models.DateFormat)).
		Str("start", start.String()).
		Str("end", end.String()).
		Int64("exclude_id", excludeID).
		Bool("available", free).
		Msg("availability checked")
	return free, nil
}

// GetAvailableSlots walks the opening hours of date in fixed steps and returns
// every start where a service of the given duration fits without conflict.
func (e *Engine) GetAvailableSlots(ctx context.Context, date time.Time, duration int) ([]models.Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("invalid duration %d", duration)
	}

	ranges := e.hours.RangesFor(date.Weekday())
	if len(ranges) == 0 {
		return []models.Slot{}, nil
	}

	closed, err := e.store.IsClosedOn(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check closure: %w", err)
	}
	if closed {
		return []models.Slot{}, nil
	}

	busy, err := e.store.ListBusySlots(ctx, date, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy slots: %w", err)
	}

	slots := []models.Slot{}
	for _, r := range ranges {
		for start := r.Open; start.Add(duration) <= r.Close; start = start.Add(e.step) {
			candidate := models.Slot{Start: start, End: start.Add(duration)}
			if isFree(busy, candidate) {
				slots = append(slots, candidate)
			}
		}
	}
	return slots, nil
}

// IsOpen reports whether [start, end) lies inside one opening range of date
// and the day is not closed.
func (e *Engine) IsOpen(ctx context.Context, date time.Time, start, end models.Clock) (bool, error) {
	inside := false
	for _, r := range e.hours.RangesFor(date.Weekday()) {
		if start >= r.Open && end <= r.Close {
			inside = true
			break
		}
	}
	if !inside {
		return false, nil
	}
	closed, err := e.store.IsClosedOn(ctx, date)
	if err != nil {
		return false, fmt.Errorf("failed to check closure: %w", err)
	}
	return !closed, nil
}

// Result is the answer shown on the booking form.
type Result struct {
	Available bool         `json:"available"`
	EndTime   models.Clock `json:"end_time"`
	Message   string       `json:"message"`
}

// Check resolves the service duration, derives the end time and reports
// whether the resulting slot can be booked.
func (e *Engine) Check(ctx context.Context, date time.Time, start models.Clock, serviceID int64) (Result, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load service %d: %w", serviceID, err)
	}

	end := start.Add(svc.Duration)
	if !svc.IsActive || svc.IsAddon() {
		return Result{EndTime: end, Message: "Service is not available for booking"}, nil
	}
	if svc.Duration <= 0 || end > models.EndOfDay {
		return Result{EndTime: end, Message: "Service does not fit into the day"}, nil
	}

	open, err := e.IsOpen(ctx, date, start, end)
	if err != nil {
		return Result{}, err
	}
	if !open {
		return Result{EndTime: end, Message: "Salon is closed at this time"}, nil
	}

	free, err := e.IsAvailable(ctx, date, start, end, 0)
	if err != nil {
		return Result{}, err
	}
	if !free {
		return Result{EndTime: end, Message: "Time slot is already booked"}, nil
	}
	return Result{Available: true, EndTime: end, Message: "Time slot is available"}, nil
}

func isFree(busy []models.Slot, candidate models.Slot) bool {
	for _, slot := range busy {
		if slot.Overlaps(candidate) {
			return false
		}
	}
	return true
}
