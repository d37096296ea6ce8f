package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/metrics"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// Sync task types understood by the sheets worker.
const (
	TaskUpsert       = domain.SyncUpsert
	TaskDelete       = domain.SyncDelete
	TaskUpdateStatus = domain.SyncUpdateStatus
)

// draftFallbackDuration is used when a draft has no service with a duration yet.
const draftFallbackDuration = 15

// DraftInput is an auto-saved, possibly incomplete booking form.
type DraftInput struct {
	SessionID string
	Contact   models.Contact
	ServiceID int64
	Date      time.Time     // zero means not chosen yet
	StartTime *models.Clock // nil means not chosen yet
	Notes     string
}

// BookingInput is a submitted booking form.
type BookingInput struct {
	Contact          models.Contact
	ServiceID        int64
	ServiceVariantID int64
	Date             time.Time
	StartTime        models.Clock
	Notes            string
	SessionID        string
}

type ReservationService struct {
	repo       domain.Repository
	engine     *availability.Engine
	limiter    domain.KeyedLimiter
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	salon      config.SalonConfig
	booking    config.BookingConfig
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewReservationService(
	repo domain.Repository,
	engine *availability.Engine,
	limiter domain.KeyedLimiter,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	salon config.SalonConfig,
	booking config.BookingConfig,
	logger *zerolog.Logger,
) *ReservationService {
	if booking.MaxDaysAhead <= 0 {
		booking.MaxDaysAhead = models.DefaultMaxDaysAhead
	}
	if booking.VerificationAttempts <= 0 {
		booking.VerificationAttempts = models.DefaultVerificationAttempts
	}
	if booking.VerificationWindow <= 0 {
		booking.VerificationWindow = models.DefaultVerificationWindow
	}
	return &ReservationService{
		repo:       repo,
		engine:     engine,
		limiter:    limiter,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		salon:      salon,
		booking:    booking,
		logger:     logger,
		now:        time.Now,
	}
}

// today returns the current salon calendar day as a UTC midnight, the form
// reservation dates are stored in.
func (s *ReservationService) today() time.Time {
	now := s.now().In(s.salon.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *ReservationService) ValidateBookingDate(date time.Time) error {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	today := s.today()

	// Проверяем, что дата не в прошлом
	if !s.booking.AllowPastDates && d.Before(today) {
		return ErrPastDate
	}

	// Проверяем максимальную дату
	if d.After(today.AddDate(0, 0, s.booking.MaxDaysAhead)) {
		return ErrDateTooFar
	}
	return nil
}

// CreateDraft saves the visitor's form for the session, updating the existing
// draft if there is one. Drafts hold no slot, so availability is not checked.
func (s *ReservationService) CreateDraft(ctx context.Context, in DraftInput) (id int64, err error) {
	defer func() { metrics.IncReservationOp("create_draft", outcome(err)) }()

	in.SessionID = strings.TrimSpace(in.SessionID)
	in.Contact = trimContact(in.Contact)
	if in.SessionID == "" {
		return 0, ErrSessionRequired
	}
	if in.Contact.Phone == "" {
		return 0, ErrPhoneRequired
	}

	err = s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		draft, err := st.FindDraftBySession(ctx, in.SessionID)
		switch {
		case errors.Is(err, database.ErrDraftNotFound):
			draft = &models.Reservation{
				ServiceID: s.salon.PlaceholderServiceID,
				Date:      s.today(),
				StartTime: models.MustClock(models.DefaultOpeningTime),
				Lifecycle: models.DraftLifecycle(),
				SessionID: in.SessionID,
			}
		case err != nil:
			return err
		}

		s.applyDraftInput(draft, in)

		duration := draftFallbackDuration
		if svc, err := st.GetService(ctx, draft.ServiceID); err == nil && svc.Duration > 0 {
			duration = svc.Duration
		} else if err != nil && !errors.Is(err, database.ErrServiceNotFound) {
			return err
		}
		draft.EndTime = clampEnd(draft.StartTime.Add(duration))
		if draft.EndTime <= draft.StartTime {
			return ErrInvalidSchedule
		}

		if draft.ID == 0 {
			if err := st.InsertReservation(ctx, draft); err != nil {
				return err
			}
		} else if err := st.UpdateReservation(ctx, draft); err != nil {
			return err
		}
		id = draft.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug().Int64("reservation_id", id).Str("session_id", in.SessionID).Msg("draft saved")
	return id, nil
}

// applyDraftInput overwrites the draft with every field the visitor filled in.
func (s *ReservationService) applyDraftInput(draft *models.Reservation, in DraftInput) {
	contact, _ := draft.Contact()
	contact = mergeContact(contact, in.Contact)
	draft.Booker = models.Unidentified{Contact: contact}

	if in.ServiceID != 0 {
		draft.ServiceID = in.ServiceID
	}
	if !in.Date.IsZero() {
		draft.Date = in.Date
	}
	if in.StartTime != nil {
		draft.StartTime = *in.StartTime
	}
	if in.Notes != "" {
		draft.ClientNotes = in.Notes
	}
}

// CreateReservation books a slot for a client. The client lookup, the
// availability check and the write share one transaction.
func (s *ReservationService) CreateReservation(ctx context.Context, in BookingInput) (res *models.Reservation, err error) {
	defer func() { metrics.IncReservationOp("create", outcome(err)) }()

	in.Contact = trimContact(in.Contact)
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.Contact.Name == "" || (in.Contact.Phone == "" && in.Contact.Email == "") {
		return nil, ErrIdentityRequired
	}
	if err := s.ValidateBookingDate(in.Date); err != nil {
		return nil, err
	}

	code, token, err := newVerification()
	if err != nil {
		return nil, err
	}

	converted := false
	err = s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		converted = false

		client, err := resolveClient(ctx, st, in.Contact)
		if err != nil {
			return err
		}

		price, duration, err := s.servicePricing(ctx, st, in.ServiceID, in.ServiceVariantID)
		if err != nil {
			return err
		}

		end := in.StartTime.Add(duration)
		if end <= in.StartTime || end > models.EndOfDay {
			return ErrInvalidSchedule
		}

		engine := s.engine.WithStore(st)
		open, err := engine.IsOpen(ctx, in.Date, in.StartTime, end)
		if err != nil {
			return err
		}
		if !open {
			return ErrOutsideOpeningHours
		}
		free, err := engine.IsAvailable(ctx, in.Date, in.StartTime, end, 0)
		if err != nil {
			return err
		}
		if !free {
			return ErrSlotUnavailable
		}

		r := &models.Reservation{Lifecycle: models.BookedLifecycle()}
		if in.SessionID != "" {
			draft, err := st.FindDraftBySession(ctx, in.SessionID)
			switch {
			case err == nil:
				r = draft
				if r.Lifecycle, err = r.Lifecycle.Transition(models.StatusPending); err != nil {
					return err
				}
				if r.Addons, err = st.GetAddonLines(ctx, r.ID); err != nil {
					return err
				}
				converted = true
			case !errors.Is(err, database.ErrDraftNotFound):
				return err
			}
		}

		r.Booker = models.Identified{ClientID: client.ID}
		r.ServiceID = in.ServiceID
		r.Date = in.Date
		r.StartTime = in.StartTime
		r.EndTime = end
		r.SessionID = ""
		r.VerificationCode = code
		r.VerificationToken = token
		if in.Notes != "" {
			r.ClientNotes = in.Notes
		}
		applyServicePrice(r, price)

		if converted {
			if err := st.UpdateReservation(ctx, r); err != nil {
				return err
			}
		} else if err := st.InsertReservation(ctx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := events.EventReservationCreated
	if converted {
		eventType = events.EventReservationConverted
	}
	s.logger.Info().
		Int64("reservation_id", res.ID).
		Str("date", res.DateString()).
		Str("start", res.StartTime.String()).
		Bool("from_draft", converted).
		Msg("reservation created")
	s.publishEvent(eventType, res, "")
	s.enqueueSync(ctx, res, TaskUpsert)
	return res, nil
}

// ConvertDraftToReservation finalizes an abandoned draft on behalf of staff.
func (s *ReservationService) ConvertDraftToReservation(ctx context.Context, draftID int64) (res *models.Reservation, err error) {
	defer func() { metrics.IncReservationOp("convert", outcome(err)) }()

	err = s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		r, err := st.GetReservation(ctx, draftID)
		if errors.Is(err, database.ErrReservationNotFound) {
			return database.ErrDraftNotFound
		}
		if err != nil {
			return err
		}
		if r.Status() != models.StatusDraft {
			return database.ErrDraftNotFound
		}

		if err := identifyBooker(ctx, st, r); err != nil {
			return err
		}

		svc, err := st.GetService(ctx, r.ServiceID)
		if err != nil {
			return err
		}
		if svc.Duration > 0 {
			r.EndTime = r.StartTime.Add(svc.Duration)
			if r.EndTime > models.EndOfDay {
				return ErrInvalidSchedule
			}
		}

		free, err := s.engine.WithStore(st).IsAvailable(ctx, r.Date, r.StartTime, r.EndTime, r.ID)
		if err != nil {
			return err
		}
		if !free {
			return ErrSlotUnavailable
		}

		if r.Lifecycle, err = r.Lifecycle.Transition(models.StatusPending); err != nil {
			return err
		}
		applyServicePrice(r, svc.Price)

		if err := st.UpdateReservation(ctx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("reservation_id", res.ID).Msg("draft converted")
	s.publishEvent(events.EventReservationConverted, res, models.StatusDraft)
	s.enqueueSync(ctx, res, TaskUpsert)
	return res, nil
}

// UpdateStatus moves a reservation to status and appends adminNotes.
func (s *ReservationService) UpdateStatus(ctx context.Context, id int64, status models.Status, adminNotes string) (res *models.Reservation, err error) {
	defer func() { metrics.IncReservationOp("update_status", outcome(err)) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var prev models.Status
	err = s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		r, err := st.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		prev = r.Status()

		if prev.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalStatus, prev)
		}
		if status == models.StatusDraft && prev != models.StatusDraft {
			return ErrInvalidTransition
		}

		if !prev.HoldsSlot() && status.HoldsSlot() {
			free, err := s.engine.WithStore(st).IsAvailable(ctx, r.Date, r.StartTime, r.EndTime, r.ID)
			if err != nil {
				return err
			}
			if !free {
				return ErrSlotUnavailable
			}
		}

		if prev == models.StatusDraft && status != models.StatusDraft {
			if err := identifyBooker(ctx, st, r); err != nil {
				return err
			}
		}

		if needsRepricing(prev, status, r.FinalPrice) {
			svc, err := st.GetService(ctx, r.ServiceID)
			switch {
			case err == nil:
				applyServicePrice(r, svc.Price)
			case errors.Is(err, database.ErrServiceNotFound):
				s.logger.Warn().Int64("reservation_id", r.ID).Int64("service_id", r.ServiceID).Msg("cannot reprice: service not found")
			default:
				return err
			}
		}

		if r.Lifecycle, err = r.Lifecycle.Transition(status); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
		}
		r.AdminNotes = appendNote(r.AdminNotes, strings.TrimSpace(adminNotes))

		if err := st.UpdateReservation(ctx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("reservation_id", id).
		Str("from", string(prev)).
		Str("to", string(status)).
		Msg("reservation status changed")
	s.publishEvent(events.EventReservationStatusChanged, res, prev)
	s.enqueueSync(ctx, res, TaskUpdateStatus)
	return res, nil
}

// AddAddon attaches quantity units of an add-on service, adding to an
// existing line for the same service.
func (s *ReservationService) AddAddon(ctx context.Context, reservationID, serviceID int64, quantity int) (res *models.Reservation, err error) {
	defer func() { metrics.IncReservationOp("add_addon", outcome(err)) }()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	err = s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		r, err := st.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}

		svc, err := st.GetService(ctx, serviceID)
		if errors.Is(err, database.ErrServiceNotFound) {
			return ErrAddonNotFound
		}
		if err != nil {
			return err
		}
		if !svc.IsAddon() || !svc.IsActive {
			return ErrAddonNotFound
		}

		line := models.AddonLine{ReservationID: r.ID, ServiceID: svc.ID, Name: svc.Name, Quantity: quantity, UnitPrice: svc.Price}
		for _, existing := range r.Addons {
			if existing.ServiceID == svc.ID {
				line.Quantity += existing.Quantity
			}
		}
		if err := st.UpsertAddonLine(ctx, line); err != nil {
			return err
		}

		res, err = s.repriceAddons(ctx, st, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.enqueueSync(ctx, res, TaskUpsert)
	return res, nil
}

func (s *ReservationService) RemoveAddon(ctx context.Context, reservationID, serviceID int64) (res *models.Reservation, err error) {
	defer func() { metrics.IncReservationOp("remove_addon", outcome(err)) }()

	err = s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		r, err := st.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := st.DeleteAddonLine(ctx, r.ID, serviceID); err != nil {
			return err
		}
		res, err = s.repriceAddons(ctx, st, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.enqueueSync(ctx, res, TaskUpsert)
	return res, nil
}

// repriceAddons reloads the add-on lines of r and stores the new total.
func (s *ReservationService) repriceAddons(ctx context.Context, st domain.ReservationStore, r *models.Reservation) (*models.Reservation, error) {
	lines, err := st.GetAddonLines(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Addons = lines
	recomputeFinalPrice(r)
	if err := st.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ReservationService) DeleteReservation(ctx context.Context, id int64) (err error) {
	defer func() { metrics.IncReservationOp("delete", outcome(err)) }()

	var deleted *models.Reservation
	err = s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		r, err := st.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if err := st.DeleteReservation(ctx, id); err != nil {
			return err
		}
		deleted = r
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int64("reservation_id", id).Msg("reservation deleted")
	s.publishEvent(events.EventReservationDeleted, deleted, "")
	s.enqueueSync(ctx, deleted, TaskDelete)
	return nil
}

// VerifyByCode confirms a pending reservation with the code sent to the
// booker. Attempts are limited per reservation.
func (s *ReservationService) VerifyByCode(ctx context.Context, id int64, code string) (res *models.Reservation, err error) {
	defer func() { metrics.IncReservationOp("verify", outcome(err)) }()

	key := "verify:" + strconv.FormatInt(id, 10)
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, key, s.booking.VerificationAttempts, s.booking.VerificationWindow)
		if err != nil {
			return nil, fmt.Errorf("check verification attempts: %w", err)
		}
		if !allowed {
			return nil, ErrTooManyAttempts
		}
	}

	res, prev, err := s.verify(ctx, func(st domain.ReservationStore) (*models.Reservation, error) {
		r, err := st.GetReservation(ctx, id)
		if err != nil {
			return nil, err
		}
		if !codesEqual(r.VerificationCode, strings.TrimSpace(code)) {
			return nil, ErrInvalidVerification
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, key); err != nil {
			s.logger.Warn().Err(err).Int64("reservation_id", id).Msg("failed to reset verification attempts")
		}
	}
	s.afterVerify(ctx, res, prev)
	return res, nil
}

// VerifyByToken confirms a pending reservation from the emailed link.
func (s *ReservationService) VerifyByToken(ctx context.Context, token string) (res *models.Reservation, err error) {
	defer func() { metrics.IncReservationOp("verify", outcome(err)) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidVerification
	}

	res, prev, err := s.verify(ctx, func(st domain.ReservationStore) (*models.Reservation, error) {
		r, err := st.GetReservationByToken(ctx, token)
		if errors.Is(err, database.ErrReservationNotFound) {
			return nil, ErrInvalidVerification
		}
		return r, err
	})
	if err != nil {
		return nil, err
	}
	s.afterVerify(ctx, res, prev)
	return res, nil
}

// verify loads a reservation with lookup and confirms it in one transaction.
func (s *ReservationService) verify(ctx context.Context, lookup func(domain.ReservationStore) (*models.Reservation, error)) (*models.Reservation, models.Status, error) {
	var (
		res  *models.Reservation
		prev models.Status
	)
	err := s.repo.WithTx(ctx, func(st domain.ReservationStore) error {
		r, err := lookup(st)
		if err != nil {
			return err
		}
		prev = r.Status()
		if prev != models.StatusPending {
			return ErrInvalidVerification
		}

		if needsRepricing(prev, models.StatusConfirmed, r.FinalPrice) {
			if svc, err := st.GetService(ctx, r.ServiceID); err == nil {
				applyServicePrice(r, svc.Price)
			}
		}
		if r.Lifecycle, err = r.Lifecycle.Transition(models.StatusConfirmed); err != nil {
			return err
		}
		r.VerificationCode = ""
		r.VerificationToken = ""

		if err := st.UpdateReservation(ctx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, prev, err
}

func (s *ReservationService) afterVerify(ctx context.Context, r *models.Reservation, prev models.Status) {
	s.logger.Info().Int64("reservation_id", r.ID).Msg("reservation verified by booker")
	s.publishEvent(events.EventReservationStatusChanged, r, prev)
	s.enqueueSync(ctx, r, TaskUpdateStatus)
}

func (s *ReservationService) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ListByDate returns reservations between from and to inclusive.
func (s *ReservationService) ListByDate(ctx context.Context, from, to time.Time) ([]*models.Reservation, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	return s.repo.ListReservations(ctx, from, to)
}

// CheckAvailability answers the booking form for one start time.
func (s *ReservationService) CheckAvailability(ctx context.Context, date time.Time, start models.Clock, serviceID int64) (availability.Result, error) {
	return s.engine.Check(ctx, date, start, serviceID)
}

// AvailableSlots lists free slots of date sized for the service.
func (s *ReservationService) AvailableSlots(ctx context.Context, date time.Time, serviceID int64) ([]models.Slot, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive || svc.IsAddon() || svc.Duration <= 0 {
		return nil, ErrServiceUnavailable
	}
	return s.engine.GetAvailableSlots(ctx, date, svc.Duration)
}

// servicePricing returns the price and duration to book, preferring the variant.
func (s *ReservationService) servicePricing(ctx context.Context, st domain.ReservationStore, serviceID, variantID int64) (int64, int, error) {
	svc, err := st.GetService(ctx, serviceID)
	if err != nil {
		return 0, 0, err
	}
	if !svc.IsActive || svc.IsAddon() {
		return 0, 0, ErrServiceUnavailable
	}
	price, duration := svc.Price, svc.Duration

	if variantID != 0 {
		variant, err := st.GetService(ctx, variantID)
		if errors.Is(err, database.ErrServiceNotFound) {
			return 0, 0, ErrInvalidVariant
		}
		if err != nil {
			return 0, 0, err
		}
		if variant.ParentID != svc.ID || !variant.IsActive {
			return 0, 0, ErrInvalidVariant
		}
		price = variant.Price
		if variant.Duration > 0 {
			duration = variant.Duration
		}
	}
	return price, duration, nil
}

// identifyBooker attaches a draft leaving the draft state to a client record
// and drops its session.
func identifyBooker(ctx context.Context, st domain.ReservationStore, r *models.Reservation) error {
	if _, ok := r.Booker.(models.Identified); !ok {
		contact, ok := r.Contact()
		if !ok || (contact.Phone == "" && contact.Email == "") {
			return ErrPhoneRequired
		}
		client, err := resolveClient(ctx, st, contact)
		if err != nil {
			return err
		}
		r.Booker = models.Identified{ClientID: client.ID}
	}
	r.SessionID = ""
	return nil
}

// resolveClient finds a client by phone and name or by email, creating one
// when nothing matches.
func resolveClient(ctx context.Context, st domain.ReservationStore, contact models.Contact) (*models.Client, error) {
	client, err := st.FindClient(ctx, contact)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, database.ErrClientNotFound) {
		return nil, err
	}

	client = &models.Client{
		Name:    contact.Name,
		Surname: contact.Surname,
		Phone:   contact.Phone,
		Email:   contact.Email,
	}
	if err := st.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *ReservationService) publishEvent(eventType string, r *models.Reservation, prev models.Status) {
	if s.eventBus == nil {
		return
	}
	payload := events.NewReservationPayload(r)
	payload.PreviousStatus = prev
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *ReservationService) enqueueSync(ctx context.Context, r *models.Reservation, taskType string) {
	if s.syncWorker == nil {
		return
	}

	var status string
	if taskType == TaskUpdateStatus {
		status = string(r.Status())
	}

	if err := s.syncWorker.EnqueueTask(ctx, taskType, r.ID, r, status); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func trimContact(c models.Contact) models.Contact {
	return models.Contact{
		Name:    strings.TrimSpace(c.Name),
		Surname: strings.TrimSpace(c.Surname),
		Phone:   strings.TrimSpace(c.Phone),
		Email:   strings.TrimSpace(c.Email),
	}
}

func mergeContact(base, update models.Contact) models.Contact {
	if update.Name != "" {
		base.Name = update.Name
	}
	if update.Surname != "" {
		base.Surname = update.Surname
	}
	if update.Phone != "" {
		base.Phone = update.Phone
	}
	if update.Email != "" {
		base.Email = update.Email
	}
	return base
}

func clampEnd(end models.Clock) models.Clock {
	if end > models.EndOfDay {
		return models.EndOfDay
	}
	return end
}
