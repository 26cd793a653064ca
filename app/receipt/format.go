package receipt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Width is the printable line width in characters for 80mm paper at the
// font size the receipt uses.
const Width = 44

// amountCol is the fixed right-justified column for money amounts in the
// two-column rows (totals, payments) and in detail rows.
const amountCol = 12

// FormatMoney renders a money value with exactly two fraction digits and
// en-US style thousands grouping, regardless of the receipt currency. Callers
// append the currency symbol themselves.
func FormatMoney(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	intPart = groupThousands(intPart)
	if neg {
		intPart = "-" + intPart
	}
	return intPart + "." + frac
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatAmount renders a numeric value with no grouping and no trailing
// zeros, the way the fiscal verification payload expects it (1180, 450.5).
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatDateTime appends the clock's HH:MM (24h, zero padded) to the
// backend-supplied date string. The date is the invoice date; the time is the
// moment of printing. That coupling is deliberate and documented: the stamp
// marks when the physical receipt was produced.
func FormatDateTime(dateStr string, now time.Time) string {
	return fmt.Sprintf("%s %02d:%02d", dateStr, now.Hour(), now.Minute())
}

// FormatLine builds the canonical two-column row: label plus currency symbol
// left-justified to width-12, amount right-justified to 12, newline
// terminated. A left field longer than its column is never truncated; it
// pushes the amount column right, which is accepted behavior.
func FormatLine(label string, amount float64, symbol string, width int) string {
	left := label + " " + symbol
	if pad := width - amountCol; len(left) < pad {
		left += strings.Repeat(" ", pad-len(left))
	}
	return left + padStart(FormatMoney(amount), amountCol) + "\n"
}

// detailRow renders one invoice line with fixed columns: quantity %.2f
// right-justified to 7, two spaces, cleaned name truncated or padded to 23,
// amount right-justified to 12. 7+2+23+12 = 44.
func detailRow(qty float64, name string, amount float64) string {
	const nameCol = 23
	if len(name) > nameCol {
		name = name[:nameCol]
	} else {
		name += strings.Repeat(" ", nameCol-len(name))
	}
	q := padStart(strconv.FormatFloat(qty, 'f', 2, 64), 7)
	return q + "  " + name + padStart(FormatMoney(amount), amountCol) + "\n"
}

// paymentRow renders one tendered payment: method left-justified to width-12,
// amount right-justified to 12. A method name longer than its column still
// gets one separating space before the amount.
func paymentRow(method string, amount float64, width int) string {
	pad := width - amountCol - len(method)
	if pad < 1 {
		pad = 1
	}
	return method + strings.Repeat(" ", pad) + padStart(FormatMoney(amount), amountCol) + "\n"
}

func padStart(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
