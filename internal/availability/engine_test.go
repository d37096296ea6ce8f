package availability

import (
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdayHours() map[string][]config.TimeRange {
	day := []config.TimeRange{{Open: models.MustClock("09:00"), Close: models.MustClock("19:00")}}
	return map[string][]config.TimeRange{
		"monday":   day,
		"friday":   day,
		"saturday": {{Open: models.MustClock("10:00"), Close: models.MustClock("12:00")}, {Open: models.MustClock("13:00"), Close: models.MustClock("14:00")}},
	}
}

func setup(t *testing.T) (*Engine, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEngine(db, NewWeeklySchedule(weekdayHours()), 15, &logger), db
}

func day(s string) time.Time {
	d, err := time.Parse(models.DateFormat, s)
	if err != nil {
		panic(err)
	}
	return d
}

func book(t *testing.T, db *database.DB, date, start, end string, lc models.Lifecycle) *models.Reservation {
	t.Helper()
	r := &models.Reservation{
		ServiceID: 1,
		Date:      day(date),
		StartTime: models.MustClock(start),
		EndTime:   models.MustClock(end),
		Lifecycle: lc,
	}
	require.NoError(t, db.InsertReservation(context.Background(), r))
	return r
}

func TestIsAvailable(t *testing.T) {
	engine, db := setup(t)
	ctx := context.Background()
	friday := day("2025-08-01")

	free, err := engine.IsAvailable(ctx, friday, models.MustClock("09:00"), models.MustClock("10:00"), 0)
	require.NoError(t, err)
	assert.True(t, free)

	held := book(t, db, "2025-08-01", "09:00", "10:00", models.BookedLifecycle())

	tests := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"StartsInside", "09:30", "10:30", false},
		{"EndsInside", "08:30", "09:30", false},
		{"Encloses", "08:00", "11:00", false},
		{"Enclosed", "09:15", "09:45", false},
		{"Identical", "09:00", "10:00", false},
		{"TouchesEnd", "10:00", "11:00", true},
		{"TouchesStart", "08:00", "09:00", true},
		{"Later", "12:00", "13:00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.IsAvailable(ctx, friday, models.MustClock(tt.start), models.MustClock(tt.end), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("ExcludeSelf", func(t *testing.T) {
		got, err := engine.IsAvailable(ctx, friday, models.MustClock("09:30"), models.MustClock("10:30"), held.ID)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("OtherDate", func(t *testing.T) {
		got, err := engine.IsAvailable(ctx, day("2025-08-04"), models.MustClock("09:00"), models.MustClock("10:00"), 0)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("EmptyRange", func(t *testing.T) {
		_, err := engine.IsAvailable(ctx, friday, models.MustClock("10:00"), models.MustClock("10:00"), 0)
		assert.Error(t, err)
	})
}

func TestIsAvailable_IgnoresNonBlockingStatuses(t *testing.T) {
	engine, db := setup(t)
	ctx := context.Background()

	cancelled, err := models.NewLifecycle(models.StatusCancelled, models.KindReserved)
	require.NoError(t, err)
	noShow, err := models.NewLifecycle(models.StatusNoShow, models.KindConfirmed)
	require.NoError(t, err)

	book(t, db, "2025-08-01", "09:00", "10:00", cancelled)
	book(t, db, "2025-08-01", "09:00", "10:00", noShow)
	book(t, db, "2025-08-01", "09:00", "10:00", models.DraftLifecycle())

	free, err := engine.IsAvailable(ctx, day("2025-08-01"), models.MustClock("09:00"), models.MustClock("10:00"), 0)
	require.NoError(t, err)
	assert.True(t, free)

	for _, status := range []models.Status{models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted} {
		lc, err := models.NewLifecycle(status, models.KindConfirmed)
		require.NoError(t, err)
		r := book(t, db, "2025-08-04", "09:00", "10:00", lc)

		free, err := engine.IsAvailable(ctx, day("2025-08-04"), models.MustClock("09:30"), models.MustClock("09:45"), 0)
		require.NoError(t, err)
		assert.False(t, free, "status %s must hold its slot", status)
		require.NoError(t, db.DeleteReservation(ctx, r.ID))
	}
}

func TestGetAvailableSlots(t *testing.T) {
	engine, db := setup(t)
	ctx := context.Background()

	t.Run("EmptyDay", func(t *testing.T) {
		slots, err := engine.GetAvailableSlots(ctx, day("2025-08-01"), 60)
		require.NoError(t, err)
		// 09:00 .. 18:00 every 15 minutes
		require.Len(t, slots, 37)
		assert.Equal(t, "09:00", slots[0].Start.String())
		assert.Equal(t, "10:00", slots[0].End.String())
		assert.Equal(t, "18:00", slots[len(slots)-1].Start.String())
		assert.Equal(t, "19:00", slots[len(slots)-1].End.String())
	})

	t.Run("SkipsBusy", func(t *testing.T) {
		book(t, db, "2025-08-01", "09:00", "10:00", models.BookedLifecycle())
		slots, err := engine.GetAvailableSlots(ctx, day("2025-08-01"), 60)
		require.NoError(t, err)
		require.Len(t, slots, 33)
		assert.Equal(t, "10:00", slots[0].Start.String())
		for _, s := range slots {
			assert.False(t, s.Overlaps(models.Slot{Start: models.MustClock("09:00"), End: models.MustClock("10:00")}))
		}
	})

	t.Run("SplitDay", func(t *testing.T) {
		slots, err := engine.GetAvailableSlots(ctx, day("2025-08-02"), 60)
		require.NoError(t, err)
		starts := make([]string, 0, len(slots))
		for _, s := range slots {
			starts = append(starts, s.Start.String())
		}
		assert.Equal(t, []string{"10:00", "10:15", "10:30", "10:45", "11:00", "13:00"}, starts)
	})

	t.Run("ClosedWeekday", func(t *testing.T) {
		slots, err := engine.GetAvailableSlots(ctx, day("2025-08-03"), 30)
		require.NoError(t, err)
		assert.Empty(t, slots)
		assert.NotNil(t, slots)
	})

	t.Run("ClosureDate", func(t *testing.T) {
		require.NoError(t, db.AddClosure(ctx, &models.Closure{Date: day("2025-08-04"), Reason: "Inventory"}))
		slots, err := engine.GetAvailableSlots(ctx, day("2025-08-04"), 30)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("LongerThanDay", func(t *testing.T) {
		slots, err := engine.GetAvailableSlots(ctx, day("2025-08-11"), 11*60)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("InvalidDuration", func(t *testing.T) {
		_, err := engine.GetAvailableSlots(ctx, day("2025-08-11"), 0)
		assert.Error(t, err)
	})
}

func TestCheck(t *testing.T) {
	engine, db := setup(t)
	ctx := context.Background()

	svc := &models.Service{Name: "Haircut", Type: models.ServiceBase, Price: 50, Duration: 60, IsActive: true}
	require.NoError(t, db.CreateService(ctx, svc))
	friday := day("2025-08-01")

	res, err := engine.Check(ctx, friday, models.MustClock("09:00"), svc.ID)
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, "10:00", res.EndTime.String())

	book(t, db, "2025-08-01", "09:00", "10:00", models.BookedLifecycle())

	res, err = engine.Check(ctx, friday, models.MustClock("09:30"), svc.ID)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, "10:30", res.EndTime.String())
	assert.Equal(t, "Time slot is already booked", res.Message)

	res, err = engine.Check(ctx, friday, models.MustClock("18:30"), svc.ID)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, "Salon is closed at this time", res.Message)

	_, err = engine.Check(ctx, friday, models.MustClock("11:00"), 999)
	assert.ErrorIs(t, err, database.ErrServiceNotFound)

	t.Run("InactiveService", func(t *testing.T) {
		retired := &models.Service{Name: "Perm", Type: models.ServiceBase, Price: 80, Duration: 60, IsActive: false}
		require.NoError(t, db.CreateService(ctx, retired))
		res, err := engine.Check(ctx, friday, models.MustClock("14:00"), retired.ID)
		require.NoError(t, err)
		assert.False(t, res.Available)
		assert.Equal(t, "Service is not available for booking", res.Message)
	})

	t.Run("AddonService", func(t *testing.T) {
		mask := &models.Service{Name: "Hair mask", Type: models.ServiceAddon, Price: 10, IsActive: true}
		require.NoError(t, db.CreateService(ctx, mask))
		res, err := engine.Check(ctx, friday, models.MustClock("14:00"), mask.ID)
		require.NoError(t, err)
		assert.False(t, res.Available)
	})
}

func TestWithStore_ReadsInsideTransaction(t *testing.T) {
	engine, db := setup(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(st domain.ReservationStore) error {
		r := &models.Reservation{
			ServiceID: 1,
			Date:      day("2025-08-01"),
			StartTime: models.MustClock("09:00"),
			EndTime:   models.MustClock("10:00"),
			Lifecycle: models.BookedLifecycle(),
		}
		if err := st.InsertReservation(ctx, r); err != nil {
			return err
		}
		free, err := engine.WithStore(st).IsAvailable(ctx, r.Date, r.StartTime, r.EndTime, 0)
		require.NoError(t, err)
		assert.False(t, free)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	free, err := engine.IsAvailable(ctx, day("2025-08-01"), models.MustClock("09:00"), models.MustClock("10:00"), 0)
	require.NoError(t, err)
	assert.True(t, free)
}

// Random bookings admitted through IsAvailable never overlap pairwise.
func TestNonOverlapProperty(t *testing.T) {
	engine, db := setup(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	date := day("2025-08-01")

	var accepted []models.Slot
	for i := 0; i < 200; i++ {
		start := models.Clock(rng.Intn(10*60) + 9*60)
		end := start.Add(rng.Intn(120) + 1)

		free, err := engine.IsAvailable(ctx, date, start, end, 0)
		require.NoError(t, err)

		conflict := false
		for _, s := range accepted {
			if s.Overlaps(models.Slot{Start: start, End: end}) {
				conflict = true
				break
			}
		}
		require.Equal(t, !conflict, free, "candidate %s-%s", start, end)

		if free {
			book(t, db, "2025-08-01", start.String(), end.String(), models.BookedLifecycle())
			accepted = append(accepted, models.Slot{Start: start, End: end})
		}
	}

	require.NotEmpty(t, accepted)
	for i := range accepted {
		for j := i + 1; j < len(accepted); j++ {
			assert.False(t, accepted[i].Overlaps(accepted[j]))
		}
	}
}
