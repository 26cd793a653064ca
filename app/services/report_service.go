package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"gorm.io/gorm"

	"FiscalAgent/app/models"
)

// ReportService exports a daily fiscal summary (receipts printed, totals and
// ITBIS per NCF type) to a Google Sheets spreadsheet.
type ReportService struct {
	db *gorm.DB
}

// NewReportService creates a report service over db.
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// GetConfig retrieves the report configuration (creates default if not exists)
func (s *ReportService) GetConfig() (*models.ReportConfig, error) {
	var config models.ReportConfig
	result := s.db.First(&config)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			config = models.ReportConfig{
				IsEnabled:      false,
				SheetName:      "Fiscal",
				LastSyncStatus: "pending",
			}
			if err := s.db.Create(&config).Error; err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to get config: %w", result.Error)
		}
	}
	return &config, nil
}

// SaveConfig saves the report configuration
func (s *ReportService) SaveConfig(config *models.ReportConfig) error {
	if config.ID == 0 {
		return s.db.Create(config).Error
	}
	return s.db.Save(config).Error
}

// TestConnection verifies the service-account credentials can reach the
// configured spreadsheet.
func (s *ReportService) TestConnection(config *models.ReportConfig) error {
	srv, err := s.sheetsClient(config)
	if err != nil {
		return err
	}
	if _, err := srv.Spreadsheets.Get(config.SpreadsheetID).Do(); err != nil {
		return fmt.Errorf("unable to access spreadsheet: %w", err)
	}
	return nil
}

// DailyReport is one summary row of the fiscal journal.
type DailyReport struct {
	Fecha         string  `json:"fecha"`
	Recibos       int64   `json:"recibos"`
	TotalB01      float64 `json:"total_b01"`
	TotalB02      float64 `json:"total_b02"`
	TotalGeneral  float64 `json:"total_general"`
	ITBIS         float64 `json:"itbis"`
	PrimerNCF     string  `json:"primer_ncf"`
	UltimoNCF     string  `json:"ultimo_ncf"`
}

// GenerateDailyReport summarizes the print journal for one date.
func (s *ReportService) GenerateDailyReport(date time.Time) (*DailyReport, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	report := &DailyReport{Fecha: date.Format("2006-01-02")}

	base := s.db.Model(&models.PrintRecord{}).
		Where("printed_at >= ? AND printed_at < ?", startOfDay, endOfDay)

	base.Session(&gorm.Session{}).Count(&report.Recibos)

	base.Session(&gorm.Session{}).
		Where("ncf_type = ?", models.NCFTypeCreditoFiscal).
		Select("COALESCE(SUM(total), 0)").Scan(&report.TotalB01)
	base.Session(&gorm.Session{}).
		Where("ncf_type = ?", models.NCFTypeConsumidorFinal).
		Select("COALESCE(SUM(total), 0)").Scan(&report.TotalB02)
	base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(total), 0)").Scan(&report.TotalGeneral)
	base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(tax), 0)").Scan(&report.ITBIS)

	var first, last models.PrintRecord
	if err := base.Session(&gorm.Session{}).Order("printed_at").First(&first).Error; err == nil {
		report.PrimerNCF = first.NCF
	}
	if err := base.Session(&gorm.Session{}).Order("printed_at desc").First(&last).Error; err == nil {
		report.UltimoNCF = last.NCF
	}

	return report, nil
}

// SendReport sends a report to the spreadsheet (updates if the date's row
// exists, appends if new)
func (s *ReportService) SendReport(config *models.ReportConfig, report *DailyReport) error {
	if !config.IsEnabled {
		return fmt.Errorf("report export is disabled")
	}

	srv, err := s.sheetsClient(config)
	if err != nil {
		return err
	}

	if err := s.ensureHeaders(srv, config); err != nil {
		return fmt.Errorf("failed to ensure headers: %w", err)
	}

	row := []interface{}{
		report.Fecha,
		report.Recibos,
		report.TotalB01,
		report.TotalB02,
		report.TotalGeneral,
		report.ITBIS,
		report.PrimerNCF,
		report.UltimoNCF,
	}

	rowIndex, err := s.findExistingRowIndex(srv, config, report.Fecha)
	if err != nil {
		return fmt.Errorf("failed to check existing row: %w", err)
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{row}}

	if rowIndex > 0 {
		sheetRange := fmt.Sprintf("%s!A%d:H%d", config.SheetName, rowIndex, rowIndex)
		_, err = srv.Spreadsheets.Values.Update(config.SpreadsheetID, sheetRange, valueRange).
			ValueInputOption("USER_ENTERED").
			Do()
		if err != nil {
			return fmt.Errorf("unable to update data: %w", err)
		}
	} else {
		sheetRange := fmt.Sprintf("%s!A:H", config.SheetName)
		_, err = srv.Spreadsheets.Values.Append(config.SpreadsheetID, sheetRange, valueRange).
			ValueInputOption("USER_ENTERED").
			Do()
		if err != nil {
			return fmt.Errorf("unable to append data: %w", err)
		}
	}

	now := time.Now()
	config.LastSyncAt = &now
	config.LastSyncStatus = "success"
	config.LastSyncError = ""
	config.TotalSyncs++
	s.db.Save(config)

	return nil
}

// SyncNow generates and sends today's report.
func (s *ReportService) SyncNow() error {
	config, err := s.GetConfig()
	if err != nil {
		return err
	}
	if !config.IsEnabled {
		return fmt.Errorf("report export is disabled")
	}

	report, err := s.GenerateDailyReport(time.Now())
	if err != nil {
		s.recordFailure(config, err)
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if err := s.SendReport(config, report); err != nil {
		s.recordFailure(config, err)
		return fmt.Errorf("failed to send report: %w", err)
	}
	return nil
}

func (s *ReportService) recordFailure(config *models.ReportConfig, cause error) {
	now := time.Now()
	config.LastSyncAt = &now
	config.LastSyncStatus = "error"
	config.LastSyncError = cause.Error()
	s.db.Save(config)
}

func (s *ReportService) sheetsClient(config *models.ReportConfig) (*sheets.Service, error) {
	if config.PrivateKey == "" || config.SpreadsheetID == "" {
		return nil, fmt.Errorf("missing credentials or spreadsheet ID")
	}

	ctx := context.Background()
	creds, err := google.CredentialsFromJSON(ctx, []byte(config.PrivateKey), sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

func (s *ReportService) findExistingRowIndex(srv *sheets.Service, config *models.ReportConfig, fecha string) (int, error) {
	sheetRange := fmt.Sprintf("%s!A:A", config.SheetName)
	resp, err := srv.Spreadsheets.Values.Get(config.SpreadsheetID, sheetRange).Do()
	if err != nil {
		return -1, err
	}

	for i, row := range resp.Values {
		if len(row) > 0 {
			if dateStr, ok := row[0].(string); ok && dateStr == fecha {
				return i + 1, nil // sheets are 1-indexed
			}
		}
	}
	return -1, nil
}

func (s *ReportService) ensureHeaders(srv *sheets.Service, config *models.ReportConfig) error {
	sheetRange := fmt.Sprintf("%s!A1:H1", config.SheetName)
	resp, err := srv.Spreadsheets.Values.Get(config.SpreadsheetID, sheetRange).Do()
	if err != nil {
		return err
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) < 8 {
		headers := []interface{}{
			"fecha",
			"recibos",
			"total_b01",
			"total_b02",
			"total_general",
			"itbis",
			"primer_ncf",
			"ultimo_ncf",
		}
		valueRange := &sheets.ValueRange{Values: [][]interface{}{headers}}
		_, err := srv.Spreadsheets.Values.Update(config.SpreadsheetID, sheetRange, valueRange).
			ValueInputOption("USER_ENTERED").
			Do()
		return err
	}
	return nil
}
