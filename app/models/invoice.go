package models

// InvoiceRecord is the fiscal invoice payload the invoicing backend returns
// for a paid POS order that is pending thermal printing. The shape mirrors the
// backend's JSON response field for field; the receipt builder reads it and
// never mutates it.
type InvoiceRecord struct {
	InvoiceID     int64      `json:"invoice_id"`
	InvoiceNumber string     `json:"invoice_number"`
	NCF           string     `json:"ncf"`
	Date          string     `json:"date"`                  // backend-formatted dd/mm/yyyy
	ValidUntil    string     `json:"valid_until,omitempty"` // NCF range expiry, empty when open-ended
	Cashier       string     `json:"cashier,omitempty"`
	Company       Company    `json:"company"`
	Partner       Partner    `json:"partner"`
	Currency      Currency   `json:"currency"`
	Lines         []LineItem `json:"lines"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	Payments      []Payment  `json:"payments,omitempty"`
	AmountPaid    float64    `json:"amount_paid,omitempty"`
}

// Company identifies the issuing company on the receipt header.
type Company struct {
	Name    string `json:"name"`
	RNC     string `json:"rnc"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
}

// Partner is the invoiced customer. RNC is empty for final consumers.
type Partner struct {
	Name string `json:"name"`
	RNC  string `json:"rnc,omitempty"`
}

// Currency carries the display symbol; amounts themselves are formatted with
// a fixed locale convention regardless of the currency.
type Currency struct {
	Symbol   string `json:"symbol,omitempty"`
	Position string `json:"position,omitempty"`
}

// LineItem is one invoice line. Name may span multiple lines and may embed a
// bracketed internal code; the builder cleans it before printing.
type LineItem struct {
	Name  string  `json:"name"`
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"` // unit price
}

// Payment is one tender against the invoice. A negative amount is a
// refund/adjustment component and feeds the change calculation.
type Payment struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}
