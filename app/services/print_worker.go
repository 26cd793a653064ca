package services

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"FiscalAgent/app/delivery"
	"FiscalAgent/app/models"
	"FiscalAgent/app/receipt"
)

// workerState is the print worker's explicit lifecycle position. The worker
// owns all print-in-progress bookkeeping; nothing about a job lives in
// package-level variables.
type workerState string

const (
	stateIdle     workerState = "idle"
	stateFetching workerState = "fetching"
	statePrinting workerState = "printing"
	stateMarking  workerState = "marking"
)

// invoiceSource is the slice of the backend client the worker needs.
type invoiceSource interface {
	NextFiscalInvoice(ctx context.Context) (*models.InvoiceRecord, error)
	MarkFiscalPrinted(ctx context.Context, invoiceID int64) error
}

// PrintWorker polls the backend for invoices pending fiscal print, builds the
// receipt and ships it through the configured delivery adapter. Each invoice
// prints at most once: the worker keeps the last printed id in memory and a
// persistent journal in the database, so neither a slow backend mark nor an
// agent restart causes a duplicate receipt.
type PrintWorker struct {
	backend invoiceSource
	builder *receipt.Builder
	adapter delivery.Adapter
	db      *gorm.DB

	interval time.Duration
	stopChan chan bool

	state              atomic.Value // workerState
	isRunning          atomic.Bool
	lastPrintedInvoice int64
}

// NewPrintWorker wires a worker from its collaborators. db may be nil in
// tests; the journal is skipped then.
func NewPrintWorker(backend invoiceSource, builder *receipt.Builder, adapter delivery.Adapter, db *gorm.DB, interval time.Duration) *PrintWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &PrintWorker{
		backend:  backend,
		builder:  builder,
		adapter:  adapter,
		db:       db,
		interval: interval,
		stopChan: make(chan bool),
	}
	w.state.Store(stateIdle)
	return w
}

// Start launches the polling loop in its own goroutine.
func (w *PrintWorker) Start() {
	go w.run()
	log.Printf("Print worker started with interval: %v", w.interval)
}

func (w *PrintWorker) run() {
	w.isRunning.Store(true)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll()

	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.stopChan:
			log.Println("Print worker stopped")
			w.isRunning.Store(false)
			return
		}
	}
}

// Stop stops the worker
func (w *PrintWorker) Stop() {
	if w.isRunning.Load() {
		w.stopChan <- true
	}
}

// State returns the worker's current lifecycle position. Safe to call from
// any goroutine while the worker runs.
func (w *PrintWorker) State() string {
	return string(w.state.Load().(workerState))
}

func (w *PrintWorker) setState(s workerState) {
	w.state.Store(s)
}

// poll runs one full cycle: fetch, dedupe, print, mark. A failure at any
// stage returns the worker to idle; the invoice stays pending on the backend
// and the next tick re-fetches and re-builds it from scratch. Raw bytes are
// never re-sent from memory.
func (w *PrintWorker) poll() {
	defer w.setState(stateIdle)

	ctx, cancel := context.WithTimeout(context.Background(), w.interval+30*time.Second)
	defer cancel()

	w.setState(stateFetching)
	rec, err := w.backend.NextFiscalInvoice(ctx)
	if err != nil {
		log.Printf("Error fetching pending invoice: %v", err)
		return
	}
	if rec == nil {
		return
	}

	if w.alreadyPrinted(rec.InvoiceID) {
		// Backend has not processed the printed mark yet. Re-mark instead
		// of re-printing.
		w.setState(stateMarking)
		if err := w.backend.MarkFiscalPrinted(ctx, rec.InvoiceID); err != nil {
			log.Printf("Error re-marking invoice %d as printed: %v", rec.InvoiceID, err)
		}
		return
	}

	w.setState(statePrinting)
	stream, err := w.builder.Build(rec)
	if err != nil {
		log.Printf("Error building receipt for invoice %d: %v", rec.InvoiceID, err)
		return
	}
	if err := w.adapter.Deliver(ctx, stream); err != nil {
		log.Printf("Error delivering invoice %d via %s: %v", rec.InvoiceID, w.adapter.Name(), err)
		return
	}

	w.lastPrintedInvoice = rec.InvoiceID
	w.journal(rec)

	w.setState(stateMarking)
	if err := w.backend.MarkFiscalPrinted(ctx, rec.InvoiceID); err != nil {
		// The journal entry protects against a duplicate print; the mark is
		// retried on the next cycle.
		log.Printf("Error marking invoice %d as printed: %v", rec.InvoiceID, err)
		return
	}

	log.Printf("Invoice %d (%s) printed via %s", rec.InvoiceID, rec.NCF, w.adapter.Name())
}

// alreadyPrinted consults the in-memory guard first, then the persistent
// journal.
func (w *PrintWorker) alreadyPrinted(invoiceID int64) bool {
	if invoiceID == w.lastPrintedInvoice && invoiceID != 0 {
		return true
	}
	if w.db == nil {
		return false
	}
	var count int64
	w.db.Model(&models.PrintRecord{}).Where("invoice_id = ?", invoiceID).Count(&count)
	return count > 0
}

// journal persists the print so a restart cannot duplicate the receipt, and
// so the daily fiscal report has its rows.
func (w *PrintWorker) journal(rec *models.InvoiceRecord) {
	if w.db == nil {
		return
	}
	record := models.PrintRecord{
		InvoiceID:     rec.InvoiceID,
		InvoiceNumber: rec.InvoiceNumber,
		NCF:           rec.NCF,
		NCFType:       ncfTypeOf(rec.NCF),
		PartnerName:   rec.Partner.Name,
		PartnerRNC:    rec.Partner.RNC,
		Subtotal:      rec.Subtotal,
		Tax:           rec.Tax,
		Total:         rec.Total,
		Adapter:       w.adapter.Name(),
		PrintedAt:     time.Now(),
	}
	if err := w.db.Create(&record).Error; err != nil {
		log.Printf("Error journaling print of invoice %d: %v", rec.InvoiceID, err)
	}
}

// ncfTypeOf extracts the 2-digit type code from an NCF like B0100000001.
func ncfTypeOf(ncf string) string {
	if len(ncf) >= 3 {
		return ncf[1:3]
	}
	return ""
}
