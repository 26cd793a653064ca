package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"FiscalAgent/app/models"
)

// DefaultNCFLowThreshold is the remaining-numbers level at which a range
// starts producing warnings.
const DefaultNCFLowThreshold = 50

// NCFService manages the locally tracked NCF ranges: validation, type
// suggestion and sequential assignment.
type NCFService struct {
	db           *gorm.DB
	lowThreshold int64
}

// NewNCFService creates an NCF service over db.
func NewNCFService(db *gorm.DB) *NCFService {
	return &NCFService{db: db, lowThreshold: DefaultNCFLowThreshold}
}

// IsValidRNC validates a Dominican tax ID: RNC (9 digits) or cédula
// (11 digits), digits only.
func IsValidRNC(rnc string) bool {
	if len(rnc) != 9 && len(rnc) != 11 {
		return false
	}
	for _, c := range rnc {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SuggestNCFType picks the document type for a customer: a valid RNC gets a
// tax-credit receipt (B01), everyone else a final-consumer receipt (B02).
func SuggestNCFType(partnerRNC string) string {
	if IsValidRNC(partnerRNC) {
		return models.NCFTypeCreditoFiscal
	}
	return models.NCFTypeConsumidorFinal
}

// ActiveRange returns the active, unexpired range for an NCF type, or an
// error when none exists.
func (s *NCFService) ActiveRange(ncfType string) (*models.NCFRange, error) {
	var r models.NCFRange
	err := s.db.Where("ncf_type = ? AND is_active = ?", ncfType, true).
		Order("id").First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("no active NCF range for type B%s", ncfType)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching NCF range: %w", err)
	}
	if r.DateEnd != nil && r.DateEnd.Before(time.Now()) {
		return nil, fmt.Errorf("NCF range for type B%s expired on %s",
			ncfType, r.DateEnd.Format("2006-01-02"))
	}
	return &r, nil
}

// Availability mirrors the backend's check_ncf_available answer, computed
// from the local ranges. ok=false blocks the sale; warning=true alerts
// without blocking.
type Availability struct {
	OK        bool   `json:"ok"`
	Warning   bool   `json:"warning,omitempty"`
	Available int64  `json:"available,omitempty"`
	Threshold int64  `json:"threshold,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CheckAvailable reports whether an NCF can be issued for the given customer
// RNC (empty for final consumers).
func (s *NCFService) CheckAvailable(partnerRNC string) *Availability {
	ncfType := SuggestNCFType(partnerRNC)

	r, err := s.ActiveRange(ncfType)
	if err != nil || r.AvailableNumbers() <= 0 {
		return &Availability{
			OK: false,
			Message: fmt.Sprintf(
				"No hay NCF disponible para este tipo de cliente. (Tipo requerido: B%s). Contacte al administrador.",
				ncfType),
		}
	}

	if r.IsLow(s.lowThreshold) {
		return &Availability{
			OK:        true,
			Warning:   true,
			Available: r.AvailableNumbers(),
			Threshold: s.lowThreshold,
			Message: fmt.Sprintf(
				"Quedan %d NCF disponibles para este tipo de cliente (B%s). Contacte al administrador.",
				r.AvailableNumbers(), ncfType),
		}
	}

	return &Availability{OK: true, Available: r.AvailableNumbers(), Threshold: s.lowThreshold}
}

// AssignNext consumes the next number from the active range for ncfType and
// returns the formatted NCF. The read takes a row lock inside the transaction
// so two concurrent assignments never read the same next_number.
func (s *NCFService) AssignNext(ncfType string) (string, error) {
	var ncf string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var r models.NCFRange
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("ncf_type = ? AND is_active = ?", ncfType, true).
			Order("id").First(&r).Error
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("no active NCF range for type B%s", ncfType)
		}
		if err != nil {
			return fmt.Errorf("error fetching NCF range: %w", err)
		}
		if r.DateEnd != nil && r.DateEnd.Before(time.Now()) {
			return fmt.Errorf("NCF range for type B%s expired on %s",
				ncfType, r.DateEnd.Format("2006-01-02"))
		}
		if r.AvailableNumbers() <= 0 {
			return fmt.Errorf("NCF range for type B%s is exhausted", ncfType)
		}

		ncf = r.FormatNCF(r.NextNumber)
		return tx.Model(&r).Update("next_number", r.NextNumber+1).Error
	})
	if err != nil {
		return "", err
	}
	return ncf, nil
}

// CreateRange registers a new authorized NCF block. Overlapping active ranges
// of the same type are rejected.
func (s *NCFService) CreateRange(r *models.NCFRange) error {
	if r.RangeStart <= 0 || r.RangeEnd < r.RangeStart {
		return fmt.Errorf("invalid NCF range bounds: %d-%d", r.RangeStart, r.RangeEnd)
	}
	if r.NCFType != models.NCFTypeCreditoFiscal && r.NCFType != models.NCFTypeConsumidorFinal {
		return fmt.Errorf("unsupported NCF type: %s", r.NCFType)
	}
	if r.NextNumber == 0 {
		r.NextNumber = r.RangeStart
	}

	var count int64
	s.db.Model(&models.NCFRange{}).
		Where("ncf_type = ? AND is_active = ? AND range_end >= ? AND range_start <= ?",
			r.NCFType, true, r.RangeStart, r.RangeEnd).
		Count(&count)
	if count > 0 {
		return fmt.Errorf("an active range for type B%s overlaps %d-%d",
			r.NCFType, r.RangeStart, r.RangeEnd)
	}

	if err := s.db.Create(r).Error; err != nil {
		return fmt.Errorf("error creating NCF range: %w", err)
	}
	return nil
}

// DeactivateRange retires a range so assignment moves to the next one.
func (s *NCFService) DeactivateRange(id uint) error {
	result := s.db.Model(&models.NCFRange{}).Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("error deactivating NCF range: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("NCF range %d not found", id)
	}
	return nil
}
