package certificate

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"permitflow/pkg/types"

	"github.com/go-pdf/fpdf"
)

const contentTypePDF = "application/pdf"

const dateLayout = "02 Jan 2006"

type document struct {
	pdf *fpdf.Fpdf
}

func newDocument(authority, title string, createdAt time.Time) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(authority, true)
	pdf.SetCreationDate(createdAt)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, authority, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")
	pdf.Line(20, pdf.GetY()+2, 190, pdf.GetY()+2)
	pdf.Ln(8)

	return &document{pdf: pdf}
}

func (d *document) row(label, value string) {
	d.pdf.SetFont("Helvetica", "B", 11)
	d.pdf.CellFormat(60, 8, label, "", 0, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "", 11)
	d.pdf.CellFormat(0, 8, value, "", 1, "L", false, 0, "")
}

func (d *document) heading(text string) {
	d.pdf.Ln(4)
	d.pdf.SetFont("Helvetica", "B", 12)
	d.pdf.CellFormat(0, 8, text, "", 1, "L", false, 0, "")
}

func (d *document) paragraph(text string) {
	d.pdf.SetFont("Helvetica", "", 11)
	d.pdf.MultiCell(0, 6, text, "", "L", false)
}

func (d *document) bytes() ([]byte, error) {
	if err := d.pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *document) applicantBlock(app *types.Application) {
	d.row("Application number", app.ApplicationNumber)
	d.row("Applicant", app.ApplicantName)
	d.row("Position type", app.PositionType)
	d.row("Building type", app.BuildingType)
}

func (d *document) chainBlock(chain []types.ApprovalEntry) {
	d.heading("Approvals")
	for _, entry := range chain {
		line := fmt.Sprintf("%s - %s (%s)", entry.Stage.Label(), entry.ActorName, entry.SignedAt.Format(dateLayout))
		d.paragraph(line)
	}
}

// RenderCertificate produces the issued permit certificate.
func RenderCertificate(app *types.Application, authority, serial string, issuedAt time.Time) ([]byte, error) {
	d := newDocument(authority, "Building Permission Certificate", issuedAt)

	d.row("Certificate serial", serial)
	d.applicantBlock(app)
	d.row("Issued on", issuedAt.Format(dateLayout))

	d.chainBlock(app.ApprovalChain)

	d.heading("Declaration")
	d.paragraph("This certificate is issued under the digital signatures of the Executive Engineer " +
		"and the City Engineer recorded above. Its authenticity can be verified against the " +
		"published signing key using the certificate serial.")

	return d.bytes()
}

// RenderRecommendationForm is produced when the City Engineer approves the
// technical review.
func RenderRecommendationForm(app *types.Application, authority string, recommendedAt time.Time) ([]byte, error) {
	d := newDocument(authority, "Recommendation Form", recommendedAt)

	d.applicantBlock(app)
	d.row("Recommended on", recommendedAt.Format(dateLayout))

	d.chainBlock(app.ApprovalChain)

	var notes []string
	for _, entry := range app.ApprovalChain {
		if entry.Comments != "" {
			notes = append(notes, string(entry.ActorRole)+": "+entry.Comments)
		}
	}
	if len(notes) > 0 {
		d.heading("Review notes")
		d.paragraph(strings.Join(notes, "\n"))
	}

	return d.bytes()
}

// RenderChallan is the fee receipt.
func RenderChallan(app *types.Application, authority, currency string) ([]byte, error) {
	if app.Payment == nil {
		return nil, fmt.Errorf("application %s has no payment", app.ApplicationNumber)
	}

	d := newDocument(authority, "Payment Challan", app.Payment.PaidAt)

	d.applicantBlock(app)
	d.row("Amount", strings.ToUpper(currency)+" "+strconv.FormatInt(app.Payment.Amount, 10))
	d.row("Payment reference", app.Payment.Reference)
	d.row("Paid via", app.Payment.Provider)
	d.row("Paid on", app.Payment.PaidAt.Format(dateLayout))

	return d.bytes()
}
