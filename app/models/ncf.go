package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// NCF document-type codes as used by the DGII "B" series.
const (
	NCFTypeCreditoFiscal   = "01" // B01 - tax-credit receipt (customers with RNC)
	NCFTypeConsumidorFinal = "02" // B02 - final-consumer receipt
)

// NCFRange is an authorized block of fiscal receipt numbers for one document
// type. The agent consumes numbers sequentially from the active range.
type NCFRange struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	NCFType     string         `gorm:"size:2;not null;index" json:"ncf_type"` // "01", "02"
	Prefix      string         `gorm:"size:1;default:B" json:"prefix"`
	RangeStart  int64          `gorm:"not null" json:"range_start"`
	RangeEnd    int64          `gorm:"not null" json:"range_end"`
	NextNumber  int64          `gorm:"not null" json:"next_number"`
	DateEnd     *time.Time     `json:"date_end,omitempty"` // authorization expiry
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// AvailableNumbers returns how many NCFs remain unconsumed in the range.
func (r *NCFRange) AvailableNumbers() int64 {
	remaining := r.RangeEnd - r.NextNumber + 1
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsLow reports whether the range has entered the warning threshold.
func (r *NCFRange) IsLow(threshold int64) bool {
	return r.AvailableNumbers() <= threshold
}

// FormatNCF renders the NCF string for a sequence number in this range,
// e.g. B0100000123.
func (r *NCFRange) FormatNCF(number int64) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "B"
	}
	return fmt.Sprintf("%s%s%08d", prefix, r.NCFType, number)
}

// PrintRecord is the journal entry for one printed fiscal receipt. The journal
// deduplicates print submissions (an invoice already journaled is never sent
// to the printer again by the poller) and feeds the daily fiscal report.
type PrintRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	InvoiceID     int64     `gorm:"uniqueIndex;not null" json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	NCF           string    `gorm:"index" json:"ncf"`
	NCFType       string    `gorm:"size:2;index" json:"ncf_type"`
	PartnerName   string    `json:"partner_name"`
	PartnerRNC    string    `json:"partner_rnc"`
	Subtotal      float64   `json:"subtotal"`
	Tax           float64   `json:"tax"`
	Total         float64   `json:"total"`
	Adapter       string    `json:"adapter"` // delivery adapter that shipped the stream
	PrintedAt     time.Time `json:"printed_at"`
	ReprintCount  int       `gorm:"default:0" json:"reprint_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ReportConfig holds the Google Sheets export settings for the daily fiscal
// summary, plus the bookkeeping of the last sync.
type ReportConfig struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	IsEnabled      bool       `gorm:"default:false" json:"is_enabled"`
	SpreadsheetID  string     `json:"spreadsheet_id"`
	SheetName      string     `gorm:"default:Fiscal" json:"sheet_name"`
	PrivateKey     string     `gorm:"type:text" json:"-"` // service account JSON
	AutoSync       bool       `gorm:"default:false" json:"auto_sync"`
	SyncTime       string     `gorm:"default:23:00" json:"sync_time"` // HH:MM, local time
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus string     `json:"last_sync_status"`
	LastSyncError  string     `json:"last_sync_error"`
	TotalSyncs     int        `json:"total_syncs"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
