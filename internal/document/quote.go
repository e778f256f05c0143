// Package document renders the PDF documents handed to requesters: the
// quote of a private-school booking and the ticket sheet of a confirmed
// booking.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/reservation"
)

// Issuer is printed in the header of every document.
const Issuer = "EDJS - Éducation et Découverte du Jeune Spectateur"

// ErrNoQuote is returned by LoadQuote when no quote was stored for a
// booking.
var ErrNoQuote = errors.New("no quote stored for booking")

// QuoteRenderer writes quote PDFs under Dir.  They are never served from
// Dir directly: the URL handed out points at BaseURL + /bookings/:id/quote.pdf,
// an authenticated route that checks the booking belongs to the caller.
type QuoteRenderer struct {
	Dir     string
	BaseURL string
	// ValidFor is how long a quote may be accepted.
	ValidFor time.Duration
	now      func() time.Time
}

// NewQuoteRenderer returns a QuoteRenderer writing into dir.  baseURL is
// the prefix of the booking routes, "/v1" or an absolute URL ending in it.
func NewQuoteRenderer(dir, baseURL string) *QuoteRenderer {
	return &QuoteRenderer{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), ValidFor: 30 * 24 * time.Hour, now: time.Now}
}

var _ reservation.QuoteGenerator = (*QuoteRenderer)(nil)

// GenerateQuote renders q and returns the URL of the stored file.
func (r *QuoteRenderer) GenerateQuote(ctx context.Context, q reservation.Quote) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, q); err != nil {
		return "", err
	}
	path := r.path(q.Booking)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("mkdir quotes: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
		return "", fmt.Errorf("write quote: %w", err)
	}
	return fmt.Sprintf("%s/bookings/%d/quote.pdf", r.BaseURL, q.Booking.ID), nil
}

// LoadQuote returns the stored quote PDF of b.
func (r *QuoteRenderer) LoadQuote(b model.Booking) ([]byte, error) {
	bs, err := os.ReadFile(r.path(b))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoQuote
	}
	if err != nil {
		return nil, fmt.Errorf("read quote: %w", err)
	}
	return bs, nil
}

func (r *QuoteRenderer) path(b model.Booking) string {
	return filepath.Join(r.Dir, "quotes", QuoteFileName(b))
}

// QuoteFileName is the stored name of the quote of b.
func QuoteFileName(b model.Booking) string {
	return fmt.Sprintf("devis-%s.pdf", b.PaymentRef)
}

// Render writes the quote PDF of q to buf.
func (r *QuoteRenderer) Render(buf *bytes.Buffer, q reservation.Quote) error {
	b, s := q.Booking, q.Session
	students, accompanists := 0, 0
	if ps, ok := b.Seats.(model.ProfessionalSeats); ok {
		students, accompanists = ps.Students, ps.Accompanists
	}
	issued := r.now().UTC()

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	header(pdf, tr, "Devis "+b.PaymentRef)

	pdf.SetFont("Arial", "", 11)
	line(pdf, tr, "Établissement : "+b.Contact.Name)
	line(pdf, tr, "Contact : "+b.Contact.Email+" / "+b.Contact.Phone)
	line(pdf, tr, "Émis le "+issued.Format("02/01/2006")+", valable jusqu'au "+issued.Add(r.ValidFor).Format("02/01/2006"))
	pdf.Ln(4)
	line(pdf, tr, fmt.Sprintf("Spectacle : %s", s.SpectacleTitle))
	line(pdf, tr, fmt.Sprintf("Représentation : %s, %s (%s)", s.StartsAt.Format("02/01/2006 15:04"), s.Venue, s.City))
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(90, 8, tr("Désignation"), "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, tr("Quantité"), "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, tr("Prix unitaire"), "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Total", "1", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	row := func(label string, qty int, unit uint32) {
		pdf.CellFormat(90, 8, tr(label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 8, fmt.Sprint(qty), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, tr(Euros(unit)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, tr(Euros(uint32(qty)*unit)), "1", 1, "R", false, 0, "")
	}
	row("Places élèves", students, q.UnitPriceCents)
	row("Accompagnateurs", accompanists, 0)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(155, 8, tr("Total à régler"), "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, tr(Euros(b.TotalAmountCents)), "1", 1, "R", false, 0, "")

	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, tr("Merci de rappeler la référence "+b.PaymentRef+
		" lors du règlement. Les billets sont émis à la confirmation de la réservation."), "", "L", false)

	return pdf.Output(buf)
}

func header(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Arial", "B", 9)
	pdf.Cell(0, 6, tr(Issuer))
	pdf.Ln(10)
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(title))
	pdf.Ln(14)
}

func line(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	pdf.Cell(0, 6, tr(text))
	pdf.Ln(6)
}

// Euros formats an amount in cents the French way.
func Euros(cents uint32) string {
	return fmt.Sprintf("%d,%02d €", cents/100, cents%100)
}
