package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/edjs/theatre-booking/internal/model"
)

const qrSize = 256

// ErrNoTickets is returned by TicketSheet when nothing can be printed.
var ErrNoTickets = errors.New("no active tickets")

// TicketSheet writes one page per active ticket of b, each carrying the
// ticket's QR code.
func TicketSheet(w io.Writer, b model.Booking, s model.Session, tickets []model.Ticket) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	opts := gofpdf.ImageOptions{ImageType: "PNG"}

	n := 0
	for _, t := range tickets {
		if t.Status != model.TicketActive {
			continue
		}
		n++
		png, err := qrcode.Encode(t.QRCode, qrcode.Medium, qrSize)
		if err != nil {
			return fmt.Errorf("qr for ticket %d: %w", t.ID, err)
		}
		pdf.AddPage()
		header(pdf, tr, s.SpectacleTitle)

		pdf.SetFont("Arial", "", 12)
		line(pdf, tr, s.StartsAt.Format("02/01/2006 15:04")+" - "+s.Venue+", "+s.City)
		line(pdf, tr, "Réservation "+b.PaymentRef)
		line(pdf, tr, "Titulaire : "+t.HolderName)
		if t.SeatNumber != nil {
			line(pdf, tr, "Place : "+*t.SeatNumber)
		}
		line(pdf, tr, fmt.Sprintf("Billet %d / %d", n, b.SeatCount()))

		name := fmt.Sprintf("qr-%d", t.ID)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
		pdf.ImageOptions(name, 150, 40, 40, 40, false, opts, 0, "")
	}
	if n == 0 {
		return fmt.Errorf("booking %d: %w", b.ID, ErrNoTickets)
	}
	return pdf.Output(w)
}
