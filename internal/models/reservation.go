package models

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// AllStatuses lists every legal status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusPending,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// HoldsSlot reports whether a reservation in this status blocks its time range.
func (s Status) HoldsSlot() bool {
	return s != StatusDraft && s != StatusCancelled && s != StatusNoShow
}

// NonBlockingStatuses are ignored by the conflict check.
var NonBlockingStatuses = []Status{StatusCancelled, StatusNoShow, StatusDraft}

// Kind records where a reservation came from, independent of its admin status.
type Kind string

const (
	KindDraft     Kind = "draft"
	KindReserved  Kind = "reserved"
	KindConfirmed Kind = "confirmed"
)

func (k Kind) Valid() bool {
	return k == KindDraft || k == KindReserved || k == KindConfirmed
}

// Lifecycle pairs a status with its kind. The zero value is not usable;
// construct it with NewLifecycle, DraftLifecycle or BookedLifecycle.
type Lifecycle struct {
	status Status
	kind   Kind
}

// NewLifecycle validates a (status, kind) pair, typically one loaded from storage.
func NewLifecycle(status Status, kind Kind) (Lifecycle, error) {
	if !status.Valid() {
		return Lifecycle{}, fmt.Errorf("unknown status %q", status)
	}
	if !kind.Valid() {
		return Lifecycle{}, fmt.Errorf("unknown reservation kind %q", kind)
	}
	switch status {
	case StatusDraft:
		if kind != KindDraft {
			return Lifecycle{}, fmt.Errorf("draft status requires draft kind, got %q", kind)
		}
	case StatusCancelled, StatusNoShow:
		// any provenance may end here
	default:
		if kind == KindDraft {
			return Lifecycle{}, fmt.Errorf("status %q cannot carry draft kind", status)
		}
	}
	return Lifecycle{status: status, kind: kind}, nil
}

func DraftLifecycle() Lifecycle {
	return Lifecycle{status: StatusDraft, kind: KindDraft}
}

// BookedLifecycle is the state of a freshly created or converted booking.
func BookedLifecycle() Lifecycle {
	return Lifecycle{status: StatusPending, kind: KindReserved}
}

func (l Lifecycle) Status() Status { return l.status }
func (l Lifecycle) Kind() Kind     { return l.kind }

// IsZero reports whether the lifecycle was never initialized.
func (l Lifecycle) IsZero() bool { return l.status == "" }

// Transition returns the lifecycle after moving to next. The kind follows the
// status: leaving draft makes a booking reserved, and confirmation or any
// later working status makes it confirmed.
func (l Lifecycle) Transition(next Status) (Lifecycle, error) {
	if !next.Valid() {
		return l, fmt.Errorf("unknown status %q", next)
	}
	kind := l.kind
	switch next {
	case StatusDraft:
		kind = KindDraft
	case StatusPending:
		if kind == KindDraft {
			kind = KindReserved
		}
	case StatusConfirmed, StatusInProgress, StatusCompleted:
		kind = KindConfirmed
	}
	return NewLifecycle(next, kind)
}

func (l Lifecycle) String() string {
	return fmt.Sprintf("%s/%s", l.status, l.kind)
}

// Contact is the identity a visitor types in before a client record exists.
type Contact struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// Booker is who a reservation belongs to: a known client or an unverified contact.
type Booker interface {
	isBooker()
}

// Identified points at a stored client record.
type Identified struct {
	ClientID int64
}

// Unidentified carries inline contact details for drafts.
type Unidentified struct {
	Contact
}

func (Identified) isBooker()   {}
func (Unidentified) isBooker() {}

type Reservation struct {
	ID                int64
	ServiceID         int64
	Date              time.Time
	StartTime         Clock
	EndTime           Clock
	Lifecycle         Lifecycle
	ServicePrice      int64
	FinalPrice        int64
	Booker            Booker
	SessionID         string
	VerificationCode  string
	VerificationToken string
	ClientNotes       string
	AdminNotes        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Addons            []AddonLine
}

func (r *Reservation) Status() Status { return r.Lifecycle.Status() }

// ClientID returns the linked client, or 0 when the booker is still unidentified.
func (r *Reservation) ClientID() int64 {
	if id, ok := r.Booker.(Identified); ok {
		return id.ClientID
	}
	return 0
}

// Contact returns the inline identity of an unidentified booker.
func (r *Reservation) Contact() (Contact, bool) {
	if u, ok := r.Booker.(Unidentified); ok {
		return u.Contact, true
	}
	return Contact{}, false
}

func (r *Reservation) Slot() Slot {
	return Slot{Start: r.StartTime, End: r.EndTime}
}

// DateString formats the reservation day the way it is stored.
func (r *Reservation) DateString() string {
	return r.Date.Format(DateFormat)
}

// AddonsTotal sums the attached add-on lines.
func (r *Reservation) AddonsTotal() int64 {
	var total int64
	for _, line := range r.Addons {
		total += line.LineTotal()
	}
	return total
}

// AddonLine is an add-on service attached to a reservation.
type AddonLine struct {
	ReservationID int64  `json:"reservation_id"`
	ServiceID     int64  `json:"service_id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
}

func (l AddonLine) LineTotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}
