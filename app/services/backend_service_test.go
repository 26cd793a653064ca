package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FiscalAgent/app/config"
)

// rpcCapture is one decoded request body as the backend saw it.
type rpcCapture struct {
	Path    string
	APIKey  string
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
	ID      int64                  `json:"id"`
}

// rpcTestServer answers every request with the given raw "result" member and
// pushes each decoded request onto the channel.
func rpcTestServer(t *testing.T, result string, captured chan<- rpcCapture) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcCapture
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		req.Path = r.URL.Path
		req.APIKey = r.Header.Get("X-API-Key")
		captured <- req

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	}))
}

func backendFor(url string) *BackendService {
	return NewBackendService(&config.BackendConfig{
		URL:      url,
		Database: "pos_prod",
		APIKey:   "secret-key",
	})
}

func TestCallEnvelopeShape(t *testing.T) {
	captured := make(chan rpcCapture, 2)
	srv := rpcTestServer(t, `{"ok":true}`, captured)
	defer srv.Close()

	svc := backendFor(srv.URL)
	require.NoError(t, svc.MarkFiscalPrinted(context.Background(), 42))

	req := <-captured
	assert.Equal(t, "/lms/pos/mark_fiscal_printed", req.Path)
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, "call", req.Method)
	assert.Equal(t, "secret-key", req.APIKey)
	assert.Equal(t, float64(42), req.Params["invoice_id"])
	assert.Equal(t, "pos_prod", req.Params["db"])
	assert.Equal(t, int64(1), req.ID)

	// The request id increments per call.
	require.NoError(t, svc.MarkFiscalPrinted(context.Background(), 43))
	assert.Equal(t, int64(2), (<-captured).ID)
}

func TestCallOmitsDatabaseWhenUnset(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"ok":true}`, captured)
	defer srv.Close()

	svc := NewBackendService(&config.BackendConfig{URL: srv.URL})
	require.NoError(t, svc.MarkFiscalPrinted(context.Background(), 1))

	req := <-captured
	_, hasDB := req.Params["db"]
	assert.False(t, hasDB)
	assert.Empty(t, req.APIKey)
}

func TestNextFiscalInvoiceReady(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"ready":true,"invoice_id":77,"invoice_number":"INV/001",
		"ncf":"B0200000005","date":"15/03/2024","total":1180,
		"company":{"name":"Ferreteria Central","rnc":"101234567"},
		"partner":{"name":"Consumidor Final"},
		"lines":[{"name":"Martillo","qty":1,"price":1180}]}`, captured)
	defer srv.Close()

	rec, err := backendFor(srv.URL).NextFiscalInvoice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/lms/pos/next_fiscal_invoice", (<-captured).Path)
	assert.Equal(t, int64(77), rec.InvoiceID)
	assert.Equal(t, "B0200000005", rec.NCF)
	assert.Equal(t, "Ferreteria Central", rec.Company.Name)
	assert.Len(t, rec.Lines, 1)
}

func TestNextFiscalInvoiceNotReady(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"ready":false}`, captured)
	defer srv.Close()

	rec, err := backendFor(srv.URL).NextFiscalInvoice(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCallRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":200,"message":"Odoo Server Error"}}`))
	}))
	defer srv.Close()

	rec, err := backendFor(srv.URL).NextFiscalInvoice(context.Background())
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, err.Error(), "Odoo Server Error")
}

func TestCallHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := backendFor(srv.URL).NextFiscalInvoice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFiscalInvoiceByReference(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"ready":true,"invoice_id":9,"ncf":"B0100000009",
		"company":{"name":"X","rnc":"101234567"},"partner":{"name":"Y"}}`, captured)
	defer srv.Close()

	rec, err := backendFor(srv.URL).FiscalInvoiceByReference(context.Background(), "Order 00042-001-0001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(9), rec.InvoiceID)

	req := <-captured
	assert.Equal(t, "/lms/pos/fiscal_invoice_by_reference", req.Path)
	assert.Equal(t, "Order 00042-001-0001", req.Params["pos_reference"])
}

func TestLastFiscalInvoiceBackendError(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"error":"no fiscal invoices yet"}`, captured)
	defer srv.Close()

	rec, err := backendFor(srv.URL).LastFiscalInvoice(context.Background())
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, err.Error(), "no fiscal invoices yet")
}

func TestTriggerFiscalInvoice(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"ok":true}`, captured)
	defer srv.Close()

	ok, err := backendFor(srv.URL).TriggerFiscalInvoice(context.Background(), "Order 1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/lms/pos/trigger_fiscal_invoice", (<-captured).Path)
}

func TestMarkFiscalPrintedRefused(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"ok":false}`, captured)
	defer srv.Close()

	err := backendFor(srv.URL).MarkFiscalPrinted(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "7")
}

func TestCheckNCFAvailable(t *testing.T) {
	captured := make(chan rpcCapture, 1)
	srv := rpcTestServer(t, `{"ok":true,"warning":true,"available":12,"threshold":50,
		"message":"Quedan 12 NCF disponibles"}`, captured)
	defer srv.Close()

	avail, err := backendFor(srv.URL).CheckNCFAvailable(context.Background(), 15)
	require.NoError(t, err)
	assert.True(t, avail.OK)
	assert.True(t, avail.Warning)
	assert.Equal(t, int64(12), avail.Available)

	req := <-captured
	assert.Equal(t, "/lms/pos/check_ncf_available", req.Path)
	assert.Equal(t, float64(15), req.Params["partner_id"])
}
