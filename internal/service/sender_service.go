package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"slotkeeper/internal/db"
	"slotkeeper/internal/entities"
	"slotkeeper/internal/repository"
)

const TypeBookingNotification = "booking:notify"

const notificationMaxRetry = 5

type NotificationPayload struct {
	BookingID string `json:"booking_id"`
	Kind      string `json:"kind"`
}

// TaskEnqueuer is the part of *asynq.Client the sender uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SenderService schedules customer notifications on the queue and, on the
// worker side, composes and delivers them.
type SenderService struct {
	Queue    TaskEnqueuer
	Bookings repository.BookingStore
	Calendar repository.CalendarStore
	Email    EmailSender
	SMS      SMSSender
	Logger   *zap.Logger
}

var _ Notifier = (*SenderService)(nil)

var emailTemplate = template.Must(template.New("booking_email").Parse(`<!DOCTYPE html>
<html lang="{{.Language}}">
<body style="font-family: sans-serif;">
  <h2>{{.OrganizationName}}</h2>
  <p>{{.UserName}},</p>
  <p><strong>{{.ServiceName}}</strong>: {{.Status}}</p>
  <p>{{.StartTimeFormatted}} &ndash; {{.EndTimeFormatted}}</p>
  <p style="color: #888;">Ref. {{.BookingID}}</p>
  <p style="color: #888; font-size: 12px;">&copy; {{.CurrentYear}} {{.OrganizationName}}</p>
</body>
</html>`))

// Notify enqueues one notification task per booking and kind. The task id
// makes repeated calls for the same pair a no-op.
func (s *SenderService) Notify(ctx context.Context, b *db.Booking, kind string) error {
	payload, err := json.Marshal(NotificationPayload{BookingID: b.ID, Kind: kind})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeBookingNotification, payload)
	_, err = s.Queue.EnqueueContext(ctx, task,
		asynq.TaskID(fmt.Sprintf("booking:%s:%s", b.ID, kind)),
		asynq.MaxRetry(notificationMaxRetry))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Deliver sends the email and, when the customer left a phone number, the SMS
// for a notification task.
func (s *SenderService) Deliver(ctx context.Context, p NotificationPayload) error {
	b, err := s.Bookings.GetBooking(ctx, p.BookingID)
	if err != nil {
		return err
	}
	org, err := s.Calendar.GetOrganization(ctx, b.OrganizationID)
	if err != nil {
		return err
	}
	serviceName := ""
	if svc, err := s.Calendar.GetService(ctx, b.ServiceID); err == nil {
		serviceName = svc.Name
	}

	data := bookingEmailData(b, org, serviceName, p.Kind)
	subject, plain := composeEmail(data)
	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, data); err != nil {
		s.Logger.Warn("could not render email template", zap.String("booking_id", b.ID), zap.Error(err))
	}

	if err := s.Email.SendEmail(b.Customer.Email, b.Customer.Name, subject, plain, html.String()); err != nil {
		return fmt.Errorf("error sending %s email for booking %s: %w", p.Kind, b.ID, err)
	}
	if b.Customer.Phone != "" {
		// The email is the receipt; a failed SMS is logged and not retried.
		if err := s.SMS.SendSMS(b.Customer.Phone, composeSMS(data, b.StartTime.In(org.Location()))); err != nil {
			s.Logger.Warn("could not send sms", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
	return nil
}

func bookingEmailData(b *db.Booking, org *db.Organization, serviceName, kind string) entities.BookingEmailData {
	loc := org.Location()
	return entities.BookingEmailData{
		UserName:           b.Customer.Name,
		BookingID:          b.ID,
		ServiceName:        serviceName,
		OrganizationName:   org.Name,
		StartTimeFormatted: b.StartTime.In(loc).Format("02 Jan 2006 15:04 MST"),
		EndTimeFormatted:   b.EndTime.In(loc).Format("02 Jan 2006 15:04 MST"),
		CurrentYear:        time.Now().In(loc).Year(),
		Language:           b.Customer.Language,
		Status:             StatusTranslation(kind, b.Customer.Language),
	}
}

// StatusTranslation renders a notification kind in the customer's language.
func StatusTranslation(kind, language string) string {
	translations := map[string]map[string]string{
		NotifyConfirmed: {"es": "confirmada", "it": "confermata", "en": "confirmed"},
		NotifyRefunded:  {"es": "reembolsada", "it": "rimborsata", "en": "refunded"},
	}
	byLang, ok := translations[kind]
	if !ok {
		return kind
	}
	if t, ok := byLang[language]; ok {
		return t
	}
	return byLang["en"]
}

func composeEmail(d entities.BookingEmailData) (subject, body string) {
	switch d.Language {
	case "es":
		subject = fmt.Sprintf("Tu reserva en %s está %s", d.OrganizationName, d.Status)
		body = fmt.Sprintf(
			"Hola %s,\n\nTu reserva en %s está %s.\n\n"+
				"Servicio: %s\n"+
				"Inicio: %s\n"+
				"Fin: %s\n"+
				"Referencia: %s\n\n"+
				"Gracias por elegir %s.",
			d.UserName, d.OrganizationName, d.Status, d.ServiceName,
			d.StartTimeFormatted, d.EndTimeFormatted, d.BookingID, d.OrganizationName,
		)
	case "it":
		subject = fmt.Sprintf("La tua prenotazione presso %s è %s", d.OrganizationName, d.Status)
		body = fmt.Sprintf(
			"Ciao %s,\n\nLa tua prenotazione presso %s è %s.\n\n"+
				"Servizio: %s\n"+
				"Inizio: %s\n"+
				"Fine: %s\n"+
				"Riferimento: %s\n\n"+
				"Grazie per aver scelto %s.",
			d.UserName, d.OrganizationName, d.Status, d.ServiceName,
			d.StartTimeFormatted, d.EndTimeFormatted, d.BookingID, d.OrganizationName,
		)
	default:
		subject = fmt.Sprintf("Your booking at %s is %s", d.OrganizationName, d.Status)
		body = fmt.Sprintf(
			"Hello %s,\n\nYour booking at %s is %s.\n\n"+
				"Service: %s\n"+
				"Start: %s\n"+
				"End: %s\n"+
				"Reference: %s\n\n"+
				"Thank you for choosing %s.",
			d.UserName, d.OrganizationName, d.Status, d.ServiceName,
			d.StartTimeFormatted, d.EndTimeFormatted, d.BookingID, d.OrganizationName,
		)
	}
	return subject, body
}

func composeSMS(d entities.BookingEmailData, start time.Time) string {
	when := start.Format("02/01 15:04")
	switch d.Language {
	case "es":
		return fmt.Sprintf("%s: tu reserva de %s está %s.\nInicio: %s.\nMás detalles en tu correo.", d.OrganizationName, d.ServiceName, d.Status, when)
	case "it":
		return fmt.Sprintf("%s: la tua prenotazione di %s è %s.\nInizio: %s.\nAltri dettagli nella tua email.", d.OrganizationName, d.ServiceName, d.Status, when)
	default:
		return fmt.Sprintf("%s: your %s booking is %s.\nStart: %s.\nMore details in your email.", d.OrganizationName, d.ServiceName, d.Status, when)
	}
}
