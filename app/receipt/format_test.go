package receipt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "1,234.50", FormatMoney(1234.5))
	assert.Equal(t, "0.00", FormatMoney(0))
	assert.Equal(t, "100.00", FormatMoney(100))
	assert.Equal(t, "1,000,000.00", FormatMoney(1000000))
	assert.Equal(t, "-1,234.50", FormatMoney(-1234.5))
	assert.Equal(t, "999.99", FormatMoney(999.99))
	assert.Equal(t, "0.10", FormatMoney(0.1))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1180", FormatAmount(1180))
	assert.Equal(t, "450.5", FormatAmount(450.5))
	assert.Equal(t, "0", FormatAmount(0))
}

func TestFormatDateTime(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 5, 30, 0, time.UTC)
	assert.Equal(t, "2024-01-01 09:05", FormatDateTime("2024-01-01", now))

	evening := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "15/01/2024 23:59", FormatDateTime("15/01/2024", evening))
}

func TestFormatLine(t *testing.T) {
	line := FormatLine("SUBTOTAL", 1000, "RD$", Width)
	assert.Equal(t, Width+1, len(line)) // width plus newline
	assert.Equal(t, "SUBTOTAL RD$                        1,000.00\n", line)
}

func TestFormatLineWidthInvariant(t *testing.T) {
	labels := []string{"SUBTOTAL", "ITBIS", "Total Pagado", "Devuelta", ""}
	for _, label := range labels {
		line := FormatLine(label, 12345.67, "RD$", Width)
		assert.GreaterOrEqual(t, len(line)-1, Width, "label %q", label)
	}
}

func TestDetailRowColumns(t *testing.T) {
	row := detailRow(2, "Cafe Santo Domingo", 500)
	assert.Equal(t, Width+1, len(row))
	assert.Equal(t, "   2.00  Cafe Santo Domingo           500.00\n", row)

	// Long names truncate so the amount column never drifts.
	long := detailRow(1, "Producto con un nombre extremadamente largo", 99.9)
	assert.Equal(t, Width+1, len(long))
	assert.Equal(t, "   1.00  Producto con un nombre        99.90\n", long)
}

func TestPaymentRow(t *testing.T) {
	row := paymentRow("Efectivo", 500, Width)
	assert.Equal(t, Width+1, len(row))
	assert.Equal(t, "Efectivo                              500.00\n", row)
}

func TestPaymentRowLongMethodKeepsSeparator(t *testing.T) {
	method := strings.Repeat("X", Width-amountCol+3)
	row := paymentRow(method, 10, Width)
	assert.Equal(t, method+"        10.00\n", row)
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "1", groupThousands("1"))
	assert.Equal(t, "123", groupThousands("123"))
	assert.Equal(t, "1,234", groupThousands("1234"))
	assert.Equal(t, "12,345,678", groupThousands("12345678"))
}
