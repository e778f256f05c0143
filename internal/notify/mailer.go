// Package notify turns booking events into emails to the requester.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/edjs/theatre-booking/internal/document"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/queue"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer emails the requester of a booking about its submission and its
// status changes.
type Mailer struct {
	sender Sender
	from   string
	log    zerolog.Logger
}

var _ queue.Handler = (*Mailer)(nil)

// NewMailer returns a Mailer sending through an SMTP dialer.
func NewMailer(host string, port int, username, password, from string, log zerolog.Logger) *Mailer {
	return NewMailerWith(gomail.NewDialer(host, port, username, password), from, log)
}

// NewMailerWith returns a Mailer sending through s.
func NewMailerWith(s Sender, from string, log zerolog.Logger) *Mailer {
	return &Mailer{sender: s, from: from, log: log.With().Str("component", "mailer").Logger()}
}

// HandleBookingEvent composes and sends the email of ev.
func (m *Mailer) HandleBookingEvent(ctx context.Context, ev queue.BookingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := ev.Booking.RecipientEmail
	if to == "" {
		m.log.Warn().Uint64("booking_id", ev.Booking.BookingID).Msg("no recipient; email skipped")
		return nil
	}
	subject, body, err := Compose(ev)
	if err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", to, ev.Booking.RecipientName)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info().Uint64("booking_id", ev.Booking.BookingID).Str("kind", ev.Kind).Msg("email sent")
	return nil
}

type emailData struct {
	queue.BookingEvent
	Headline string
	Amount   string
	When     string
}

var emailTmpl = template.Must(template.New("booking").Parse(`<p>Bonjour {{.Booking.RecipientName}},</p>
<p>{{.Headline}}</p>
<ul>
<li>Spectacle : {{.Booking.SpectacleTitle}}</li>
<li>Représentation : {{.When}}, {{.Booking.Venue}} ({{.Booking.City}})</li>
<li>Places : {{.Booking.Seats}}</li>
<li>Montant : {{.Amount}}</li>
<li>Référence : {{.Booking.Reference}}</li>
</ul>
{{if .Booking.QuoteURL}}<p>Votre devis : <a href="{{.Booking.QuoteURL}}">{{.Booking.QuoteURL}}</a></p>{{end}}
<p>L'équipe EDJS</p>
`))

// Compose returns the subject and HTML body of the email for ev.
func Compose(ev queue.BookingEvent) (string, string, error) {
	headline, subject := headlineFor(ev)
	data := emailData{
		BookingEvent: ev,
		Headline:     headline,
		Amount:       document.Euros(ev.Booking.AmountCents),
		When:         ev.Booking.StartsAt.Format("02/01/2006 15:04"),
	}
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render email: %w", err)
	}
	return subject + " " + ev.Booking.Reference, buf.String(), nil
}

func headlineFor(ev queue.BookingEvent) (headline, subject string) {
	if ev.Submitted() {
		switch ev.Booking.Status {
		case model.StatusConfirmed:
			return "Votre réservation est confirmée.", "Réservation confirmée"
		case model.StatusAwaitingVerification:
			return "Votre demande est enregistrée et attend la vérification de votre structure.", "Demande reçue"
		}
		return "Votre demande de réservation est enregistrée.", "Demande reçue"
	}
	switch ev.Booking.Status {
	case model.StatusConfirmed:
		return "Votre réservation est confirmée.", "Réservation confirmée"
	case model.StatusRejected:
		return "Nous ne pouvons malheureusement pas donner suite à votre demande.", "Réservation refusée"
	case model.StatusCancelled:
		return "Votre réservation a été annulée.", "Réservation annulée"
	case model.StatusPending:
		return "Votre réservation est de nouveau en attente de confirmation.", "Réservation en attente"
	case model.StatusCompleted:
		return "Merci d'être venus au spectacle.", "Merci"
	}
	return "Le statut de votre réservation a changé.", "Réservation mise à jour"
}
