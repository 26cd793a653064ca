package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FiscalAgent/app/models"
)

func TestGenerateDailyReport(t *testing.T) {
	db := testDB(t)
	svc := NewReportService(db)

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	records := []models.PrintRecord{
		{InvoiceID: 1, NCF: "B0100000001", NCFType: "01", Subtotal: 1000, Tax: 180, Total: 1180,
			PrintedAt: day.Add(9 * time.Hour)},
		{InvoiceID: 2, NCF: "B0200000001", NCFType: "02", Subtotal: 500, Tax: 90, Total: 590,
			PrintedAt: day.Add(12 * time.Hour)},
		{InvoiceID: 3, NCF: "B0200000002", NCFType: "02", Subtotal: 100, Tax: 18, Total: 118,
			PrintedAt: day.Add(20 * time.Hour)},
		// Previous day, must not count.
		{InvoiceID: 4, NCF: "B0200000000", NCFType: "02", Total: 999,
			PrintedAt: day.Add(-2 * time.Hour)},
	}
	for i := range records {
		require.NoError(t, db.Create(&records[i]).Error)
	}

	report, err := svc.GenerateDailyReport(day.Add(6 * time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-10", report.Fecha)
	assert.Equal(t, int64(3), report.Recibos)
	assert.InDelta(t, 1180, report.TotalB01, 0.001)
	assert.InDelta(t, 708, report.TotalB02, 0.001)
	assert.InDelta(t, 1888, report.TotalGeneral, 0.001)
	assert.InDelta(t, 288, report.ITBIS, 0.001)
	assert.Equal(t, "B0100000001", report.PrimerNCF)
	assert.Equal(t, "B0200000002", report.UltimoNCF)
}

func TestGetConfigCreatesDefault(t *testing.T) {
	db := testDB(t)
	svc := NewReportService(db)

	config, err := svc.GetConfig()
	require.NoError(t, err)
	assert.False(t, config.IsEnabled)
	assert.Equal(t, "Fiscal", config.SheetName)

	// Second call returns the same row.
	again, err := svc.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, config.ID, again.ID)
}

func TestSendReportDisabled(t *testing.T) {
	db := testDB(t)
	svc := NewReportService(db)

	err := svc.SendReport(&models.ReportConfig{IsEnabled: false}, &DailyReport{})
	assert.Error(t, err)
}
