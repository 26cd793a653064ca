package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"FiscalAgent/app/config"
	"FiscalAgent/app/models"
)

// BackendService talks to the invoicing backend's JSON-RPC endpoints. Every
// call posts an envelope {"jsonrpc":"2.0","method":"call","params":{...}} and
// unwraps the "result" member.
type BackendService struct {
	baseURL  string
	database string
	apiKey   string
	client   *http.Client
	rpcID    atomic.Int64
}

// NewBackendService creates a backend client from config.
func NewBackendService(cfg *config.BackendConfig) *BackendService {
	return &BackendService{
		baseURL:  cfg.URL,
		database: cfg.Database,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// invoiceEnvelope is the invoice payload plus the readiness flag the backend
// wraps around it.
type invoiceEnvelope struct {
	models.InvoiceRecord
	Ready *bool  `json:"ready,omitempty"`
	Error string `json:"error,omitempty"`
}

// okResponse covers the endpoints that answer {"ok": bool}.
type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// NCFAvailability is the backend's answer to a pre-sale NCF check.
type NCFAvailability struct {
	OK        bool   `json:"ok"`
	Warning   bool   `json:"warning,omitempty"`
	Available int64  `json:"available,omitempty"`
	Threshold int64  `json:"threshold,omitempty"`
	Message   string `json:"message,omitempty"`
}

// call posts one JSON-RPC request and decodes result into out. The backend
// database name, when configured, rides in the params of every call.
func (s *BackendService) call(ctx context.Context, path string, params map[string]interface{}, out interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}
	if s.database != "" {
		params["db"] = s.database
	}
	envelope := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      s.rpcID.Add(1),
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("backend RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("error parsing result: %w", err)
		}
	}
	return nil
}

// NextFiscalInvoice asks for the newest paid invoice that is still pending
// print. A nil record with nil error means nothing is ready.
func (s *BackendService) NextFiscalInvoice(ctx context.Context) (*models.InvoiceRecord, error) {
	var env invoiceEnvelope
	if err := s.call(ctx, "/lms/pos/next_fiscal_invoice", nil, &env); err != nil {
		return nil, err
	}
	if env.Ready == nil || !*env.Ready {
		return nil, nil
	}
	rec := env.InvoiceRecord
	return &rec, nil
}

// FiscalInvoiceByReference fetches the invoice for a specific POS order
// reference. A nil record means the invoice is not ready yet.
func (s *BackendService) FiscalInvoiceByReference(ctx context.Context, posReference string) (*models.InvoiceRecord, error) {
	params := map[string]interface{}{"pos_reference": posReference}
	var env invoiceEnvelope
	if err := s.call(ctx, "/lms/pos/fiscal_invoice_by_reference", params, &env); err != nil {
		return nil, err
	}
	if env.Ready == nil || !*env.Ready {
		return nil, nil
	}
	rec := env.InvoiceRecord
	return &rec, nil
}

// LastFiscalInvoice fetches the newest invoice regardless of print state,
// used for manual reprints.
func (s *BackendService) LastFiscalInvoice(ctx context.Context) (*models.InvoiceRecord, error) {
	var env invoiceEnvelope
	if err := s.call(ctx, "/lms/pos/last_fiscal_invoice", nil, &env); err != nil {
		return nil, err
	}
	if env.Error != "" {
		return nil, fmt.Errorf("backend: %s", env.Error)
	}
	rec := env.InvoiceRecord
	return &rec, nil
}

// TriggerFiscalInvoice asks the backend to create the fiscal invoice for a
// paid order immediately instead of waiting for its cron.
func (s *BackendService) TriggerFiscalInvoice(ctx context.Context, posReference string) (bool, error) {
	params := map[string]interface{}{"pos_reference": posReference}
	var resp okResponse
	if err := s.call(ctx, "/lms/pos/trigger_fiscal_invoice", params, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

// MarkFiscalPrinted flags the invoice as printed so it never comes back from
// NextFiscalInvoice.
func (s *BackendService) MarkFiscalPrinted(ctx context.Context, invoiceID int64) error {
	params := map[string]interface{}{"invoice_id": invoiceID}
	var resp okResponse
	if err := s.call(ctx, "/lms/pos/mark_fiscal_printed", params, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("backend refused to mark invoice %d as printed", invoiceID)
	}
	return nil
}

// CheckNCFAvailable asks whether an NCF is available for the given partner.
// partnerID zero means a final consumer.
func (s *BackendService) CheckNCFAvailable(ctx context.Context, partnerID int64) (*NCFAvailability, error) {
	params := map[string]interface{}{}
	if partnerID != 0 {
		params["partner_id"] = partnerID
	}
	var resp NCFAvailability
	if err := s.call(ctx, "/lms/pos/check_ncf_available", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
