// Package notify tells salon staff about reservation changes over Telegram.
package notify

import (
	"fmt"
	"strings"

	"salonbook/internal/config"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// NewBot connects to the Bot API. It returns nil when no token is configured.
func NewBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// ServiceNamer resolves a service id to its display name.
type ServiceNamer func(id int64) string

// AdminNotifier posts a short message to the admin chat for every reservation event.
type AdminNotifier struct {
	bot    domain.TelegramSender
	chatID int64
	names  ServiceNamer
	logger *zerolog.Logger
}

func NewAdminNotifier(bot domain.TelegramSender, chatID int64, names ServiceNamer, logger *zerolog.Logger) *AdminNotifier {
	if names == nil {
		names = func(id int64) string { return fmt.Sprintf("#%d", id) }
	}
	return &AdminNotifier{bot: bot, chatID: chatID, names: names, logger: logger}
}

func (n *AdminNotifier) Attach(bus *events.EventBus) {
	bus.Subscribe(n.Handle, events.ReservationEvents...)
}

func (n *AdminNotifier) Handle(event *events.Event) error {
	payload, err := event.DecodePayload()
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	text := n.format(event.Type, payload)
	if text == "" {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.logger.Debug().Str("event", event.Type).Int64("reservation_id", payload.ReservationID).Msg("admin notified")
	return nil
}

func (n *AdminNotifier) format(eventType string, p events.ReservationEventPayload) string {
	slot := fmt.Sprintf("%s %s-%s", p.Date, p.StartTime, p.EndTime)
	service := n.names(p.ServiceID)

	var b strings.Builder
	switch eventType {
	case events.EventReservationCreated:
		fmt.Fprintf(&b, "New reservation #%d\n%s, %s", p.ReservationID, service, slot)
	case events.EventReservationConverted:
		fmt.Fprintf(&b, "Draft #%d became a reservation\n%s, %s", p.ReservationID, service, slot)
	case events.EventReservationStatusChanged:
		fmt.Fprintf(&b, "Reservation #%d: %s -> %s\n%s, %s", p.ReservationID, p.PreviousStatus, p.Status, service, slot)
	case events.EventReservationDeleted:
		fmt.Fprintf(&b, "Reservation #%d deleted\n%s, %s", p.ReservationID, service, slot)
	default:
		return ""
	}
	if p.FinalPrice > 0 && p.Status != models.StatusCancelled {
		fmt.Fprintf(&b, "\nTotal: %d", p.FinalPrice)
	}
	if p.ClientNotes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", p.ClientNotes)
	}
	return b.String()
}
