package service

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/models"
	"salonbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogSeed = []models.Service{
	{ID: 1, Name: "Haircut", Type: models.ServiceBase, Price: 50, Duration: 60, SortOrder: 1, IsActive: true},
	{ID: 2, Name: "Haircut long hair", Type: models.ServiceVariant, ParentID: 1, Price: 70, Duration: 90, SortOrder: 2, IsActive: true},
	{ID: 3, Name: "Coloring", Type: models.ServiceBase, Price: 120, Duration: 120, SortOrder: 3, IsActive: true},
	{ID: 4, Name: "Hair mask", Type: models.ServiceAddon, Price: 10, SortOrder: 4, IsActive: true},
	{ID: 5, Name: "Retired", Type: models.ServiceBase, Price: 30, Duration: 30, SortOrder: 5, IsActive: false},
	{ID: 6, Name: "Coloring roots", Type: models.ServiceVariant, ParentID: 3, Price: 90, Duration: 60, SortOrder: 6, IsActive: true},
}

type syncCall struct {
	taskType      string
	reservationID int64
	status        string
}

type recorder struct {
	mu     sync.Mutex
	events []string
	tasks  []syncCall
}

func (r *recorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Type)
	return nil
}

func (r *recorder) EnqueueTask(_ context.Context, taskType string, id int64, _ *models.Reservation, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, syncCall{taskType: taskType, reservationID: id, status: status})
	return nil
}

func (r *recorder) lastEvent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) lastTask() syncCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tasks) == 0 {
		return syncCall{}
	}
	return r.tasks[len(r.tasks)-1]
}

func testHours() map[string][]config.TimeRange {
	day := []config.TimeRange{{Open: models.MustClock("09:00"), Close: models.MustClock("19:00")}}
	return map[string][]config.TimeRange{
		"monday": day, "tuesday": day, "wednesday": day, "thursday": day, "friday": day,
	}
}

// Sunday 2025-07-20 10:00 UTC.
var fixedNow = time.Date(2025, 7, 20, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, dbPath string) (*ReservationService, *database.DB, *recorder) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SyncServices(context.Background(), catalogSeed))

	salon := config.SalonConfig{Timezone: "UTC", OpeningHours: testHours(), SlotStepMinutes: 15}
	booking := config.BookingConfig{MaxDaysAhead: 60, VerificationAttempts: 3, VerificationWindow: time.Minute}

	rec := &recorder{}
	bus := events.NewEventBus(&logger)
	bus.Subscribe(rec.handle, events.ReservationEvents...)

	engine := availability.NewEngine(db, availability.NewWeeklySchedule(salon.OpeningHours), salon.SlotStepMinutes, &logger)
	svc := NewReservationService(db, engine, repository.NewMemoryLimiter(), bus, rec, salon, booking, &logger)
	svc.now = func() time.Time { return fixedNow }
	return svc, db, rec
}

func day(s string) time.Time {
	d, err := time.Parse(models.DateFormat, s)
	if err != nil {
		panic(err)
	}
	return d
}

func clock(s string) *models.Clock {
	c := models.MustClock(s)
	return &c
}

func booking(date, start string) BookingInput {
	return BookingInput{
		Contact:   models.Contact{Name: "Ana", Surname: "Perez", Phone: "12345678", Email: "ana@example.com"},
		ServiceID: 1,
		Date:      day(date),
		StartTime: models.MustClock(start),
	}
}

func TestCreateReservation_Scenario1(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()

	r, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	assert.NotZero(t, r.ID)
	assert.Equal(t, "10:00", r.EndTime.String())
	assert.Equal(t, models.StatusPending, r.Status())
	assert.Equal(t, models.KindReserved, r.Lifecycle.Kind())
	assert.Equal(t, int64(50), r.ServicePrice)
	assert.Equal(t, int64(50), r.FinalPrice)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), r.VerificationCode)
	assert.NotEmpty(t, r.VerificationToken)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "10:00", stored.EndTime.String())
	assert.NotZero(t, stored.ClientID())
	_, inline := stored.Contact()
	assert.False(t, inline, "finalized reservations carry no inline identity")

	client, err := db.GetClient(ctx, stored.ClientID())
	require.NoError(t, err)
	assert.Equal(t, "Ana Perez", client.FullName())

	assert.Equal(t, events.EventReservationCreated, rec.lastEvent())
	assert.Equal(t, syncCall{taskType: TaskUpsert, reservationID: r.ID}, rec.lastTask())
}

func TestCreateReservation_Scenario2_Overlap(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	_, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	other := booking("2025-08-01", "09:30")
	other.Contact = models.Contact{Name: "Bob", Phone: "99999999"}
	_, err = svc.CreateReservation(ctx, other)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// the client lookup ran in the rolled back transaction
	_, err = db.FindClient(ctx, other.Contact)
	assert.ErrorIs(t, err, database.ErrClientNotFound)

	list, err := db.ListReservations(ctx, day("2025-08-01"), day("2025-08-01"))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// back-to-back is fine
	other.StartTime = models.MustClock("10:00")
	r, err := svc.CreateReservation(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "11:00", r.EndTime.String())
}

func TestCreateReservation_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*BookingInput)
		want   error
	}{
		{"MissingName", func(in *BookingInput) { in.Contact.Name = " " }, ErrIdentityRequired},
		{"MissingPhoneAndEmail", func(in *BookingInput) { in.Contact.Phone, in.Contact.Email = "", "" }, ErrIdentityRequired},
		{"PastDate", func(in *BookingInput) { in.Date = day("2025-07-18") }, ErrPastDate},
		{"TooFar", func(in *BookingInput) { in.Date = day("2025-12-01") }, ErrDateTooFar},
		{"UnknownService", func(in *BookingInput) { in.ServiceID = 99 }, database.ErrServiceNotFound},
		{"InactiveService", func(in *BookingInput) { in.ServiceID = 5 }, ErrServiceUnavailable},
		{"AddonIsNotBookable", func(in *BookingInput) { in.ServiceID = 4 }, ErrServiceUnavailable},
		{"ForeignVariant", func(in *BookingInput) { in.ServiceVariantID = 6 }, ErrInvalidVariant},
		{"UnknownVariant", func(in *BookingInput) { in.ServiceVariantID = 99 }, ErrInvalidVariant},
		{"AfterClosing", func(in *BookingInput) { in.StartTime = models.MustClock("18:30") }, ErrOutsideOpeningHours},
		{"ClosedWeekday", func(in *BookingInput) { in.Date = day("2025-08-03") }, ErrOutsideOpeningHours},
		{"PastMidnight", func(in *BookingInput) { in.StartTime = models.MustClock("23:30") }, ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := booking("2025-08-01", "09:00")
			tt.mutate(&in)
			_, err := svc.CreateReservation(ctx, in)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err) || errorsIsNotFound(err))
		})
	}
}

func errorsIsNotFound(err error) bool {
	return err != nil && outcome(err) == "not_found"
}

func TestCreateReservation_ZeroDurationIsInvalidSchedule(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	zero := &models.Service{Name: "Consultation", Type: models.ServicePackage, Price: 0, Duration: 0, IsActive: true}
	require.NoError(t, db.CreateService(ctx, zero))

	in := booking("2025-08-01", "09:00")
	in.ServiceID = zero.ID
	_, err := svc.CreateReservation(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCreateReservation_VariantPricing(t *testing.T) {
	svc, _, _ := newTestService(t, ":memory:")

	in := booking("2025-08-01", "09:00")
	in.ServiceVariantID = 2
	r, err := svc.CreateReservation(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(70), r.ServicePrice)
	assert.Equal(t, int64(70), r.FinalPrice)
	assert.Equal(t, "10:30", r.EndTime.String())
	assert.Equal(t, int64(1), r.ServiceID)
}

func TestCreateReservation_ReusesClient(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	first, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	byEmail := booking("2025-08-01", "11:00")
	byEmail.Contact = models.Contact{Name: "Ana Maria", Phone: "000", Email: "ANA@example.com"}
	second, err := svc.CreateReservation(ctx, byEmail)
	require.NoError(t, err)
	assert.Equal(t, first.ClientID(), second.ClientID())

	byPhone := booking("2025-08-01", "13:00")
	byPhone.Contact = models.Contact{Name: "ana", Phone: "12345678"}
	third, err := svc.CreateReservation(ctx, byPhone)
	require.NoError(t, err)
	assert.Equal(t, first.ClientID(), third.ClientID())

	stranger := booking("2025-08-01", "15:00")
	stranger.Contact = models.Contact{Name: "Carla", Phone: "12345678"}
	fourth, err := svc.CreateReservation(ctx, stranger)
	require.NoError(t, err)
	assert.NotEqual(t, first.ClientID(), fourth.ClientID())

	c, err := db.GetClient(ctx, fourth.ClientID())
	require.NoError(t, err)
	assert.Equal(t, "Carla", c.Name)
}

func TestCreateDraft_Scenario3(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()

	id, err := svc.CreateDraft(ctx, DraftInput{SessionID: "abc", Contact: models.Contact{Phone: "12345678"}})
	require.NoError(t, err)

	draft, err := db.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, draft.Status())
	assert.Equal(t, models.KindDraft, draft.Lifecycle.Kind())
	assert.Equal(t, "2025-07-20", draft.DateString())
	assert.Equal(t, models.DefaultOpeningTime, draft.StartTime.String())
	assert.Equal(t, "09:15", draft.EndTime.String())
	assert.Zero(t, draft.FinalPrice)

	again, err := svc.CreateDraft(ctx, DraftInput{
		SessionID: "abc",
		Contact:   models.Contact{Phone: "12345678"},
		ServiceID: 3,
		Date:      day("2025-08-01"),
		StartTime: clock("14:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, id, again, "same session updates the existing draft")

	updated, err := db.FindDraftBySession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, int64(3), updated.ServiceID)
	assert.Equal(t, "2025-08-01", updated.DateString())
	assert.Equal(t, "14:00", updated.StartTime.String())
	assert.Equal(t, "16:00", updated.EndTime.String())
	contact, ok := updated.Contact()
	require.True(t, ok)
	assert.Equal(t, "12345678", contact.Phone)

	all, err := db.ListReservations(ctx, day("2025-07-01"), day("2025-09-01"))
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Empty(t, rec.events, "drafts emit no events")
}

func TestCreateDraft_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	_, err := svc.CreateDraft(ctx, DraftInput{SessionID: "abc"})
	assert.ErrorIs(t, err, ErrPhoneRequired)

	_, err = svc.CreateDraft(ctx, DraftInput{Contact: models.Contact{Phone: "1"}})
	assert.ErrorIs(t, err, ErrSessionRequired)

	_, err = svc.CreateDraft(ctx, DraftInput{SessionID: "late", Contact: models.Contact{Phone: "1"}, StartTime: clock("24:00")})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCreateDraft_DoesNotHoldSlot(t *testing.T) {
	svc, _, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	_, err := svc.CreateDraft(ctx, DraftInput{
		SessionID: "s1",
		Contact:   models.Contact{Phone: "1"},
		ServiceID: 1,
		Date:      day("2025-08-01"),
		StartTime: clock("09:00"),
	})
	require.NoError(t, err)

	_, err = svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	assert.NoError(t, err)
}

func TestCreateReservation_ConvertsSessionDraft(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()

	draftID, err := svc.CreateDraft(ctx, DraftInput{
		SessionID: "sess-1",
		Contact:   models.Contact{Phone: "12345678"},
		Notes:     "prefers Maria",
	})
	require.NoError(t, err)

	in := booking("2025-08-01", "09:00")
	in.SessionID = "sess-1"
	r, err := svc.CreateReservation(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, draftID, r.ID)
	assert.Equal(t, models.StatusPending, r.Status())
	assert.Equal(t, models.KindReserved, r.Lifecycle.Kind())
	assert.Empty(t, r.SessionID)
	assert.Equal(t, "prefers Maria", r.ClientNotes)

	_, err = db.FindDraftBySession(ctx, "sess-1")
	assert.ErrorIs(t, err, database.ErrDraftNotFound)

	stored, err := db.GetReservation(ctx, draftID)
	require.NoError(t, err)
	_, inline := stored.Contact()
	assert.False(t, inline)
	assert.NotZero(t, stored.ClientID())
	assert.Equal(t, int64(50), stored.FinalPrice)
	assert.NotEmpty(t, stored.VerificationToken)

	assert.Equal(t, events.EventReservationConverted, rec.lastEvent())

	// a session without a draft inserts a fresh row
	in = booking("2025-08-01", "11:00")
	in.SessionID = "unknown"
	fresh, err := svc.CreateReservation(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, draftID, fresh.ID)
}

func TestConvertDraftToReservation(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()

	draftID, err := svc.CreateDraft(ctx, DraftInput{
		SessionID: "s",
		Contact:   models.Contact{Name: "Ana", Phone: "12345678"},
		ServiceID: 1,
		Date:      day("2025-08-04"),
		StartTime: clock("10:00"),
	})
	require.NoError(t, err)

	r, err := svc.ConvertDraftToReservation(ctx, draftID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, r.Status())
	assert.Equal(t, models.KindReserved, r.Lifecycle.Kind())
	assert.Equal(t, int64(50), r.ServicePrice)
	assert.Equal(t, int64(50), r.FinalPrice)
	assert.Equal(t, "11:00", r.EndTime.String())
	assert.Empty(t, r.SessionID)

	client, err := db.GetClient(ctx, r.ClientID())
	require.NoError(t, err)
	assert.Equal(t, "12345678", client.Phone)

	assert.Equal(t, events.EventReservationConverted, rec.lastEvent())

	_, err = svc.ConvertDraftToReservation(ctx, draftID)
	assert.ErrorIs(t, err, ErrDraftNotFound, "second conversion fails")

	_, err = svc.ConvertDraftToReservation(ctx, 4242)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestConvertDraftToReservation_SlotTaken(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	draftID, err := svc.CreateDraft(ctx, DraftInput{
		SessionID: "s",
		Contact:   models.Contact{Phone: "1"},
		ServiceID: 1,
		Date:      day("2025-08-01"),
		StartTime: clock("09:30"),
	})
	require.NoError(t, err)

	_, err = svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	_, err = svc.ConvertDraftToReservation(ctx, draftID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	still, err := db.GetReservation(ctx, draftID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, still.Status())
}

// insertUnpriced stores a pending reservation created before pricing was known.
func insertUnpriced(t *testing.T, db *database.DB, date, start, end string) *models.Reservation {
	t.Helper()
	client := &models.Client{Name: "Ana", Phone: "1"}
	require.NoError(t, db.CreateClient(context.Background(), client))
	r := &models.Reservation{
		ServiceID: 1,
		Date:      day(date),
		StartTime: models.MustClock(start),
		EndTime:   models.MustClock(end),
		Lifecycle: models.BookedLifecycle(),
		Booker:    models.Identified{ClientID: client.ID},
	}
	require.NoError(t, db.InsertReservation(context.Background(), r))
	return r
}

func TestUpdateStatus_Scenario4_Repricing(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()
	r := insertUnpriced(t, db, "2025-08-01", "09:00", "10:00")

	updated, err := svc.UpdateStatus(ctx, r.ID, models.StatusConfirmed, "called client")
	require.NoError(t, err)
	assert.Equal(t, int64(50), updated.ServicePrice)
	assert.Equal(t, int64(50), updated.FinalPrice)
	assert.Equal(t, models.KindConfirmed, updated.Lifecycle.Kind())

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status())
	assert.Equal(t, int64(50), stored.FinalPrice)
	assert.Equal(t, "called client", stored.AdminNotes)

	assert.Equal(t, events.EventReservationStatusChanged, rec.lastEvent())
	assert.Equal(t, syncCall{taskType: TaskUpdateStatus, reservationID: r.ID, status: "confirmed"}, rec.lastTask())

	// prices already set are left alone
	require.NoError(t, db.UpdateService(ctx, &models.Service{ID: 1, Name: "Haircut", Type: models.ServiceBase, Price: 65, Duration: 60, IsActive: true}))
	done, err := svc.UpdateStatus(ctx, r.ID, models.StatusCompleted, "paid")
	require.NoError(t, err)
	assert.Equal(t, int64(50), done.FinalPrice)
	assert.Equal(t, "called client\npaid", done.AdminNotes)
}

func TestUpdateStatus_Scenario6_InvalidStatus(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()
	r := insertUnpriced(t, db, "2025-08-01", "09:00", "10:00")

	_, err := svc.UpdateStatus(ctx, r.ID, models.Status("archived"), "note")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status())
	assert.Empty(t, stored.AdminNotes)
	assert.Equal(t, r.UpdatedAt.Unix(), stored.UpdatedAt.Unix())
	assert.Empty(t, rec.events)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, 999, models.StatusConfirmed, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("WorkingPath", func(t *testing.T) {
		r := insertUnpriced(t, db, "2025-08-04", "09:00", "10:00")
		for _, next := range []models.Status{models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted} {
			_, err := svc.UpdateStatus(ctx, r.ID, next, "")
			require.NoError(t, err, next)
		}
		for _, next := range models.AllStatuses {
			_, err := svc.UpdateStatus(ctx, r.ID, next, "")
			assert.ErrorIs(t, err, ErrTerminalStatus, next)
		}
	})

	t.Run("CancelledIsTerminal", func(t *testing.T) {
		r := insertUnpriced(t, db, "2025-08-05", "09:00", "10:00")
		_, err := svc.UpdateStatus(ctx, r.ID, models.StatusCancelled, "client called")
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, r.ID, models.StatusConfirmed, "")
		assert.ErrorIs(t, err, ErrTerminalStatus)
	})

	t.Run("NoReturnToDraft", func(t *testing.T) {
		r := insertUnpriced(t, db, "2025-08-06", "09:00", "10:00")
		_, err := svc.UpdateStatus(ctx, r.ID, models.StatusDraft, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("DraftConfirmedNeedsFreeSlot", func(t *testing.T) {
		draftID, err := svc.CreateDraft(ctx, DraftInput{
			SessionID: "d", Contact: models.Contact{Phone: "1"}, ServiceID: 1,
			Date: day("2025-08-07"), StartTime: clock("09:00"),
		})
		require.NoError(t, err)
		insertUnpriced(t, db, "2025-08-07", "09:30", "10:30")

		_, err = svc.UpdateStatus(ctx, draftID, models.StatusConfirmed, "")
		assert.ErrorIs(t, err, ErrSlotUnavailable)

		_, err = svc.UpdateStatus(ctx, draftID, models.StatusCancelled, "abandoned")
		assert.NoError(t, err)
	})

	t.Run("DraftConfirmedIdentifiesClient", func(t *testing.T) {
		draftID, err := svc.CreateDraft(ctx, DraftInput{
			SessionID: "walk-in", Contact: models.Contact{Name: "Lu", Phone: "555"}, ServiceID: 1,
			Date: day("2025-08-11"), StartTime: clock("09:00"),
		})
		require.NoError(t, err)

		got, err := svc.UpdateStatus(ctx, draftID, models.StatusConfirmed, "")
		require.NoError(t, err)
		assert.Equal(t, models.KindConfirmed, got.Lifecycle.Kind())
		assert.Empty(t, got.SessionID)
		assert.Equal(t, int64(50), got.FinalPrice)

		stored, err := db.GetReservation(ctx, draftID)
		require.NoError(t, err)
		require.NotZero(t, stored.ClientID())
		_, inline := stored.Contact()
		assert.False(t, inline)
		assert.Empty(t, stored.SessionID)

		client, err := db.GetClient(ctx, stored.ClientID())
		require.NoError(t, err)
		assert.Equal(t, "555", client.Phone)

		_, err = svc.ConvertDraftToReservation(ctx, draftID)
		assert.ErrorIs(t, err, ErrDraftNotFound)
	})

	t.Run("SameStatusAppendsNotes", func(t *testing.T) {
		r := insertUnpriced(t, db, "2025-08-08", "09:00", "10:00")
		_, err := svc.UpdateStatus(ctx, r.ID, models.StatusPending, "first")
		require.NoError(t, err)
		got, err := svc.UpdateStatus(ctx, r.ID, models.StatusPending, "second")
		require.NoError(t, err)
		assert.Equal(t, "first\nsecond", got.AdminNotes)
	})
}

func TestAddons_Scenario5(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	r, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)
	before := r.FinalPrice

	withMask, err := svc.AddAddon(ctx, r.ID, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, before+20, withMask.FinalPrice)
	assertPriceConsistent(t, db, r.ID)

	more, err := svc.AddAddon(ctx, r.ID, 4, 1)
	require.NoError(t, err)
	require.Len(t, more.Addons, 1)
	assert.Equal(t, 3, more.Addons[0].Quantity)
	assert.Equal(t, before+30, more.FinalPrice)
	assertPriceConsistent(t, db, r.ID)

	removed, err := svc.RemoveAddon(ctx, r.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, before, removed.FinalPrice)
	assert.Empty(t, removed.Addons)
	assertPriceConsistent(t, db, r.ID)

	_, err = svc.RemoveAddon(ctx, r.ID, 4)
	assert.ErrorIs(t, err, ErrAddonNotAttached)
}

func TestAddons_Errors(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()
	r, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	_, err = svc.AddAddon(ctx, r.ID, 1, 1)
	assert.ErrorIs(t, err, ErrAddonNotFound, "base service is not an addon")

	_, err = svc.AddAddon(ctx, r.ID, 99, 1)
	assert.ErrorIs(t, err, ErrAddonNotFound)

	require.NoError(t, db.DeactivateService(ctx, 4))
	_, err = svc.AddAddon(ctx, r.ID, 4, 1)
	assert.ErrorIs(t, err, ErrAddonNotFound)

	_, err = svc.AddAddon(ctx, r.ID, 4, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AddAddon(ctx, 999, 4, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RemoveAddon(ctx, 999, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func assertPriceConsistent(t *testing.T, db *database.DB, id int64) {
	t.Helper()
	stored, err := db.GetReservation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, stored.ServicePrice+stored.AddonsTotal(), stored.FinalPrice)
}

func TestDeleteReservation(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()

	r, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)
	_, err = svc.AddAddon(ctx, r.ID, 4, 1)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteReservation(ctx, r.ID))
	_, err = svc.GetReservation(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	lines, err := db.GetAddonLines(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	assert.Equal(t, events.EventReservationDeleted, rec.lastEvent())
	assert.Equal(t, syncCall{taskType: TaskDelete, reservationID: r.ID}, rec.lastTask())

	assert.ErrorIs(t, svc.DeleteReservation(ctx, r.ID), ErrNotFound)

	// the freed slot can be booked again
	_, err = svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	assert.NoError(t, err)
}

func TestVerifyByCode(t *testing.T) {
	svc, db, rec := newTestService(t, ":memory:")
	ctx := context.Background()

	r, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	wrong := "000000"
	if r.VerificationCode == wrong {
		wrong = "111111"
	}
	_, err = svc.VerifyByCode(ctx, r.ID, wrong)
	assert.ErrorIs(t, err, ErrInvalidVerification)

	confirmed, err := svc.VerifyByCode(ctx, r.ID, r.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status())
	assert.Equal(t, models.KindConfirmed, confirmed.Lifecycle.Kind())

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.VerificationCode)
	assert.Empty(t, stored.VerificationToken)
	assert.Equal(t, events.EventReservationStatusChanged, rec.lastEvent())

	_, err = svc.VerifyByCode(ctx, r.ID, r.VerificationCode)
	assert.ErrorIs(t, err, ErrInvalidVerification, "code is single use")
}

func TestVerifyByCode_AttemptLimit(t *testing.T) {
	svc, _, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	r, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	wrong := "000000"
	if r.VerificationCode == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		_, err = svc.VerifyByCode(ctx, r.ID, wrong)
		assert.ErrorIs(t, err, ErrInvalidVerification)
	}

	_, err = svc.VerifyByCode(ctx, r.ID, r.VerificationCode)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestVerifyByToken(t *testing.T) {
	svc, _, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	r, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)

	confirmed, err := svc.VerifyByToken(ctx, r.VerificationToken)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status())

	_, err = svc.VerifyByToken(ctx, r.VerificationToken)
	assert.ErrorIs(t, err, ErrInvalidVerification)

	_, err = svc.VerifyByToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidVerification)
}

func TestListByDateAndAvailability(t *testing.T) {
	svc, _, _ := newTestService(t, ":memory:")
	ctx := context.Background()

	_, err := svc.CreateReservation(ctx, booking("2025-08-01", "09:00"))
	require.NoError(t, err)
	_, err = svc.CreateReservation(ctx, booking("2025-08-04", "09:00"))
	require.NoError(t, err)

	list, err := svc.ListByDate(ctx, day("2025-08-01"), day("2025-08-01"))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListByDate(ctx, day("2025-08-02"), day("2025-08-01"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	check, err := svc.CheckAvailability(ctx, day("2025-08-01"), models.MustClock("09:30"), 1)
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Equal(t, "10:30", check.EndTime.String())

	slots, err := svc.AvailableSlots(ctx, day("2025-08-01"), 3)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "10:00", slots[0].Start.String())
	assert.Equal(t, "12:00", slots[0].End.String())

	_, err = svc.AvailableSlots(ctx, day("2025-08-01"), 4)
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	// the booking form must not offer what CreateReservation refuses
	check, err = svc.CheckAvailability(ctx, day("2025-08-04"), models.MustClock("14:00"), 5)
	require.NoError(t, err)
	assert.False(t, check.Available)
	_, err = svc.CreateReservation(ctx, BookingInput{
		Contact: models.Contact{Phone: "1", Name: "A"}, ServiceID: 5,
		Date: day("2025-08-04"), StartTime: models.MustClock("14:00"),
	})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

// End time always derives from the service duration and overlapping bookings
// never both hold their slot.
func TestBookingProperties(t *testing.T) {
	svc, db, _ := newTestService(t, ":memory:")
	ctx := context.Background()
	durations := map[int64]int{1: 60, 3: 120}

	starts := []string{"09:00", "09:45", "10:00", "10:30", "11:15", "12:00", "13:00", "13:30", "15:00", "16:45", "17:00"}
	for i, start := range starts {
		in := booking("2025-08-01", start)
		if i%2 == 1 {
			in.ServiceID = 3
		}
		r, err := svc.CreateReservation(ctx, in)
		if err != nil {
			assert.ErrorIs(t, err, ErrSlotUnavailable)
			continue
		}
		assert.Equal(t, r.StartTime.Add(durations[in.ServiceID]), r.EndTime)
		assert.Greater(t, int(r.EndTime), int(r.StartTime))
	}

	list, err := db.ListReservations(ctx, day("2025-08-01"), day("2025-08-01"))
	require.NoError(t, err)
	require.NotEmpty(t, list)
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			assert.False(t, list[i].Slot().Overlaps(list[j].Slot()), "%s vs %s", list[i].StartTime, list[j].StartTime)
		}
	}
}

func TestCreateReservation_ConcurrentSameSlot(t *testing.T) {
	svc, db, _ := newTestService(t, filepath.Join(t.TempDir(), "race.db"))
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			in := booking("2025-08-01", "09:00")
			in.Contact.Phone = "5550000" + string(rune('0'+n))
			_, err := svc.CreateReservation(ctx, in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
	assert.Equal(t, 1, wins)

	busy, err := db.ListBusySlots(ctx, day("2025-08-01"), 0)
	require.NoError(t, err)
	assert.Len(t, busy, 1)
}
