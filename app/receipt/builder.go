package receipt

import (
	"fmt"
	"strings"
	"time"

	"FiscalAgent/app/models"
)

const pad = "  "

var separator = pad + strings.Repeat("-", Width) + "\n"

// Builder turns a fiscal invoice into the ESC/POS command stream for an
// 80mm thermal printer. Build is pure given a fixed Clock: the same record
// always produces byte-identical output.
type Builder struct {
	// Clock supplies the print-time stamp embedded in the FECHA line.
	// Defaults to time.Now. Tests inject a fixed clock.
	Clock func() time.Time

	// RasterQR switches the fiscal verification code from the printer's
	// native GS ( k model-2 commands to a pre-rendered raster bitmap, for
	// printers whose firmware lacks native QR support.
	RasterQR bool
}

// Build assembles the complete receipt for rec. It performs no I/O; delivery
// of the stream belongs to the caller.
func (b *Builder) Build(rec *models.InvoiceRecord) (*CommandStream, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil invoice record")
	}
	now := time.Now
	if b.Clock != nil {
		now = b.Clock
	}
	symbol := rec.Currency.Symbol

	s := &CommandStream{}

	s.Append(cmdReset)
	s.AppendText("\n\n")

	// Company header, double size centered name.
	s.Append(cmdAlignCenter)
	s.Append(cmdSizeDouble)
	s.AppendText(pad + Normalize(rec.Company.Name) + "\n")
	s.Append(cmdSizeNormal)
	s.AppendText("\n")
	s.AppendText(pad + Normalize("RNC: "+rec.Company.RNC) + "\n")
	if rec.Company.Phone != "" {
		s.AppendText(pad + Normalize("Tel: "+rec.Company.Phone) + "\n")
	}
	if rec.Company.Email != "" {
		s.AppendText(pad + Normalize("Email: "+rec.Company.Email) + "\n")
	}
	s.Append(cmdAlignLeft)

	// Fiscal block.
	s.AppendText(separator)
	s.AppendText(pad + Normalize(ComprobanteLabel(rec.NCF)) + "\n")
	s.AppendText(pad + "NCF: " + rec.NCF + "\n")
	if rec.ValidUntil != "" {
		s.AppendText(pad + Normalize("Valido hasta: "+rec.ValidUntil) + "\n")
	}
	s.AppendText(pad + "FECHA: " + FormatDateTime(rec.Date, now()) + "\n")
	s.AppendText(pad + "FACTURA: " + rec.InvoiceNumber + "\n")
	if rec.Cashier != "" {
		s.AppendText(pad + Normalize("CAJERO: "+rec.Cashier) + "\n")
	}
	s.AppendText(separator)

	// Customer block.
	s.AppendText(pad + Normalize(rec.Partner.Name) + "\n")
	if rec.Partner.RNC != "" {
		s.AppendText(pad + "RNC: " + rec.Partner.RNC + "\n")
	}
	s.AppendText(separator)

	// Detail table.
	s.AppendText(pad + "Cant     Descripcion             Importe " + symbol + "\n")
	s.AppendText(separator)
	for _, l := range rec.Lines {
		s.AppendText(pad + detailRow(l.Qty, CleanProductName(l.Name), l.Qty*l.Price))
	}

	// Totals.
	s.AppendText(separator)
	s.AppendText(pad + FormatLine("SUBTOTAL", rec.Subtotal, symbol, Width))
	s.AppendText(pad + FormatLine("ITBIS", rec.Tax, symbol, Width))
	s.AppendText(separator)

	s.Append(cmdBoldOn)
	s.Append(cmdSizeDouble)
	s.Append(cmdAlignCenter)
	s.AppendText("TOTAL " + symbol + " " + FormatMoney(rec.Total) + "\n")
	s.Append(cmdSizeNormal)
	s.Append(cmdBoldOff)
	s.Append(cmdAlignLeft)
	s.AppendText("\n")

	// Payments.
	if len(rec.Payments) > 0 {
		s.AppendText(separator)
		s.AppendText(pad + "Pagos " + symbol + "\n")

		var totalPaid, negative float64
		for _, p := range rec.Payments {
			if p.Amount > 0 {
				totalPaid += p.Amount
				s.AppendText(pad + paymentRow(Normalize(p.Method), p.Amount, Width))
			} else {
				negative += -p.Amount
			}
		}

		change := totalPaid - rec.Total
		if negative > change {
			change = negative
		}
		if change < 0 {
			change = 0
		}

		s.AppendText(separator)
		s.AppendText(pad + FormatLine("Total Pagado", totalPaid, symbol, Width))
		s.AppendText(pad + FormatLine("Devuelta", change, symbol, Width))
	}

	// Footer and verification code.
	s.AppendText("\n")
	s.Append(cmdAlignCenter)
	s.AppendText(pad + "DOCUMENTO VALIDO PARA FINES FISCALES\n")
	s.AppendText(pad + "GRACIAS POR SU COMPRA\n")

	payload := VerificationPayload(rec)

	s.AppendText("\n")
	s.AppendText(pad + "VERIFICACION FISCAL\n")
	if b.RasterQR {
		img, err := rasterQR(payload)
		if err != nil {
			return nil, fmt.Errorf("rendering verification code: %w", err)
		}
		s.Append(img)
	} else {
		s.Append(buildQR(payload))
	}
	s.AppendText("\n")
	s.AppendText(pad + "CONSERVE ESTE COMPROBANTE\n")

	s.AppendText("\n\n\n")
	s.Append(cmdCut)

	return s, nil
}

// VerificationPayload builds the pipe-delimited string the DGII verification
// QR encodes. The total carries no grouping and no forced decimals.
func VerificationPayload(rec *models.InvoiceRecord) string {
	return "RNC=" + rec.Company.RNC +
		"|NCF=" + rec.NCF +
		"|TOTAL=" + FormatAmount(rec.Total) +
		"|FECHA=" + rec.Date
}
