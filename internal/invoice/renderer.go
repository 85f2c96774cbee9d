package invoice

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/skyfare/skyfare/internal/ledger"
)

// Renderer turns an invoice into a downloadable document. Render returns the
// document bytes and their content type.
type Renderer interface {
	Render(inv *Invoice, acct *ledger.Account) ([]byte, string, error)
}

// PDFRenderer is the built-in single-page PDF renderer. It emits plain
// Helvetica text lines; anything fancier belongs behind the Renderer
// interface in a dedicated implementation.
type PDFRenderer struct{}

// NewPDFRenderer creates the built-in PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render implements Renderer.
func (r *PDFRenderer) Render(inv *Invoice, acct *ledger.Account) ([]byte, string, error) {
	lines := []string{
		"SKYFARE AGENT BILLING",
		"",
		fmt.Sprintf("Invoice %s", inv.InvoiceNumber),
		fmt.Sprintf("Agent: %s (%s)", acct.Name, acct.ID),
		fmt.Sprintf("Period: %s to %s",
			inv.PeriodStart.Format("2006-01-02"), inv.PeriodEnd.Format("2006-01-02")),
		fmt.Sprintf("Due date: %s", inv.DueDate.Format("2006-01-02")),
		fmt.Sprintf("Status: %s", inv.Status),
		"",
		"Ticket                           Amount      Paid",
	}
	for _, l := range inv.Lines {
		lines = append(lines, fmt.Sprintf("%-28s %9s %9s", l.TicketID, l.Amount, l.PaidAmount))
	}
	outstanding, err := inv.Outstanding()
	if err != nil {
		return nil, "", err
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Total:       %s", inv.TotalAmount),
		fmt.Sprintf("Paid:        %s", inv.PaidAmount),
		fmt.Sprintf("Outstanding: %s", outstanding),
	)

	return buildPDF(lines), "application/pdf", nil
}

// buildPDF assembles a minimal one-page PDF with the given text lines.
func buildPDF(lines []string) []byte {
	var content bytes.Buffer
	content.WriteString("BT\n/F1 10 Tf\n50 780 Td\n12 TL\n")
	for _, line := range lines {
		fmt.Fprintf(&content, "(%s) Tj\nT*\n", escapePDFText(line))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xref)
	return buf.Bytes()
}

func escapePDFText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	s = strings.ReplaceAll(s, ")", `\)`)
	return s
}
