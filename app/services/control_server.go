package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"FiscalAgent/app/delivery"
	"FiscalAgent/app/models"
	"FiscalAgent/app/receipt"
)

// backendControl is the slice of the backend client the control surface needs.
type backendControl interface {
	LastFiscalInvoice(ctx context.Context) (*models.InvoiceRecord, error)
	FiscalInvoiceByReference(ctx context.Context, posReference string) (*models.InvoiceRecord, error)
	TriggerFiscalInvoice(ctx context.Context, posReference string) (bool, error)
	CheckNCFAvailable(ctx context.Context, partnerID int64) (*NCFAvailability, error)
}

// ControlServer is the agent's local operations surface: worker status, NCF
// range administration and availability checks, manual reprints and manual
// invoice triggering. It binds to loopback; it is for the operator at the
// till, not for the LAN.
type ControlServer struct {
	backend backendControl
	ncf     *NCFService
	worker  *PrintWorker
	builder *receipt.Builder
	adapter delivery.Adapter
	db      *gorm.DB

	http *http.Server
}

// NewControlServer wires the control surface from its collaborators.
func NewControlServer(addr string, backend backendControl, ncf *NCFService,
	worker *PrintWorker, builder *receipt.Builder, adapter delivery.Adapter, db *gorm.DB) *ControlServer {
	if addr == "" {
		addr = "127.0.0.1:5002"
	}
	s := &ControlServer{
		backend: backend,
		ncf:     ncf,
		worker:  worker,
		builder: builder,
		adapter: adapter,
		db:      db,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ncf/check", s.handleNCFCheck)
	mux.HandleFunc("/ncf/backend", s.handleNCFBackend)
	mux.HandleFunc("/ncf/assign", s.handleNCFAssign)
	mux.HandleFunc("/ncf/ranges", s.handleNCFRanges)
	mux.HandleFunc("/ncf/ranges/deactivate", s.handleNCFDeactivate)
	mux.HandleFunc("/reprint", s.handleReprint)
	mux.HandleFunc("/trigger", s.handleTrigger)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Start serves the control API. It blocks until the listener fails or
// Shutdown is called.
func (s *ControlServer) Start() error {
	log.Printf("Control server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control server error: %w", err)
	}
	return nil
}

// Shutdown stops the control server.
func (s *ControlServer) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *ControlServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	controlJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"worker":  s.worker.State(),
		"adapter": s.adapter.Name(),
	})
}

// handleNCFCheck answers from the locally tracked ranges, so the till gets a
// verdict even while the backend is unreachable.
func (s *ControlServer) handleNCFCheck(w http.ResponseWriter, r *http.Request) {
	avail := s.ncf.CheckAvailable(r.URL.Query().Get("rnc"))
	controlJSON(w, http.StatusOK, avail)
}

// handleNCFBackend forwards the availability question to the backend, which
// sees the ranges of every till.
func (s *ControlServer) handleNCFBackend(w http.ResponseWriter, r *http.Request) {
	partnerID, _ := strconv.ParseInt(r.URL.Query().Get("partner_id"), 10, 64)
	avail, err := s.backend.CheckNCFAvailable(r.Context(), partnerID)
	if err != nil {
		controlError(w, http.StatusBadGateway, err)
		return
	}
	controlJSON(w, http.StatusOK, avail)
}

func (s *ControlServer) handleNCFAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		controlError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		NCFType string `json:"ncf_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		controlError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body"))
		return
	}

	ncf, err := s.ncf.AssignNext(req.NCFType)
	if err != nil {
		controlError(w, http.StatusConflict, err)
		return
	}
	log.Printf("NCF %s assigned manually", ncf)
	controlJSON(w, http.StatusOK, map[string]interface{}{"ncf": ncf})
}

func (s *ControlServer) handleNCFRanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		controlError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var rng models.NCFRange
	if err := json.NewDecoder(r.Body).Decode(&rng); err != nil {
		controlError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body"))
		return
	}
	if err := s.ncf.CreateRange(&rng); err != nil {
		controlError(w, http.StatusConflict, err)
		return
	}
	log.Printf("NCF range B%s %d-%d registered", rng.NCFType, rng.RangeStart, rng.RangeEnd)
	controlJSON(w, http.StatusCreated, &rng)
}

func (s *ControlServer) handleNCFDeactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		controlError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		ID uint `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		controlError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body"))
		return
	}
	if err := s.ncf.DeactivateRange(req.ID); err != nil {
		controlError(w, http.StatusNotFound, err)
		return
	}
	controlJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// handleReprint fetches an invoice from the backend and sends it to the
// printer again. With a pos_reference it reprints that order; without one it
// reprints the newest fiscal invoice. Reprints bypass the poller's journal
// dedupe on purpose and bump the journal's reprint counter instead.
func (s *ControlServer) handleReprint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		controlError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		PosReference string `json:"pos_reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		controlError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body"))
		return
	}

	var rec *models.InvoiceRecord
	var err error
	if req.PosReference != "" {
		rec, err = s.backend.FiscalInvoiceByReference(r.Context(), req.PosReference)
	} else {
		rec, err = s.backend.LastFiscalInvoice(r.Context())
	}
	if err != nil {
		controlError(w, http.StatusBadGateway, err)
		return
	}
	if rec == nil {
		controlError(w, http.StatusNotFound, fmt.Errorf("invoice not ready for %q", req.PosReference))
		return
	}

	stream, err := s.builder.Build(rec)
	if err != nil {
		controlError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.adapter.Deliver(r.Context(), stream); err != nil {
		controlError(w, http.StatusServiceUnavailable, err)
		return
	}

	if s.db != nil {
		s.db.Model(&models.PrintRecord{}).Where("invoice_id = ?", rec.InvoiceID).
			UpdateColumn("reprint_count", gorm.Expr("reprint_count + 1"))
	}
	log.Printf("Invoice %d (%s) reprinted via %s", rec.InvoiceID, rec.NCF, s.adapter.Name())
	controlJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "ncf": rec.NCF})
}

// handleTrigger asks the backend to create the fiscal invoice for a paid
// order right away instead of waiting for its cron.
func (s *ControlServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		controlError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		PosReference string `json:"pos_reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PosReference == "" {
		controlError(w, http.StatusBadRequest, fmt.Errorf("pos_reference is required"))
		return
	}

	ok, err := s.backend.TriggerFiscalInvoice(r.Context(), req.PosReference)
	if err != nil {
		controlError(w, http.StatusBadGateway, err)
		return
	}
	controlJSON(w, http.StatusOK, map[string]interface{}{"ok": ok})
}

func controlJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func controlError(w http.ResponseWriter, status int, err error) {
	controlJSON(w, status, map[string]interface{}{"status": "error", "error": err.Error()})
}
