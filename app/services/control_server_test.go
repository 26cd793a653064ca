package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"FiscalAgent/app/models"
)

type stubControlBackend struct {
	last      *models.InvoiceRecord
	byRef     map[string]*models.InvoiceRecord
	triggered []string
	avail     *NCFAvailability
	partnerID int64
}

func (s *stubControlBackend) LastFiscalInvoice(ctx context.Context) (*models.InvoiceRecord, error) {
	return s.last, nil
}

func (s *stubControlBackend) FiscalInvoiceByReference(ctx context.Context, posReference string) (*models.InvoiceRecord, error) {
	return s.byRef[posReference], nil
}

func (s *stubControlBackend) TriggerFiscalInvoice(ctx context.Context, posReference string) (bool, error) {
	s.triggered = append(s.triggered, posReference)
	return true, nil
}

func (s *stubControlBackend) CheckNCFAvailable(ctx context.Context, partnerID int64) (*NCFAvailability, error) {
	s.partnerID = partnerID
	return s.avail, nil
}

type controlFixture struct {
	control *ControlServer
	backend *stubControlBackend
	adapter *stubAdapter
	ncf     *NCFService
	db      *gorm.DB
}

func newControlFixture(t *testing.T) *controlFixture {
	t.Helper()
	db := testDB(t)
	backend := &stubControlBackend{}
	adapter := &stubAdapter{}
	ncf := NewNCFService(db)
	worker := NewPrintWorker(&stubBackend{}, testBuilder(), adapter, db, time.Second)

	control := NewControlServer("", backend, ncf, worker, testBuilder(), adapter, db)
	return &controlFixture{control: control, backend: backend, adapter: adapter, ncf: ncf, db: db}
}

// do drives the control mux directly so every assertion runs in the test
// goroutine.
func (f *controlFixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.control.http.Handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()
	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestControlStatus(t *testing.T) {
	f := newControlFixture(t)

	resp, body := f.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["worker"])
	assert.Equal(t, "stub", body["adapter"])
}

func TestControlNCFCheck(t *testing.T) {
	f := newControlFixture(t)
	require.NoError(t, f.ncf.CreateRange(&models.NCFRange{
		NCFType:    models.NCFTypeConsumidorFinal,
		RangeStart: 1,
		RangeEnd:   1000,
	}))

	resp, body := f.do(t, http.MethodGet, "/ncf/check", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	// An RNC customer needs B01 and no range exists for it.
	_, body = f.do(t, http.MethodGet, "/ncf/check?rnc=101234567", nil)
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["message"], "B01")
}

func TestControlNCFBackendCheck(t *testing.T) {
	f := newControlFixture(t)
	f.backend.avail = &NCFAvailability{OK: true, Available: 42}

	resp, body := f.do(t, http.MethodGet, "/ncf/backend?partner_id=15", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, int64(15), f.backend.partnerID)
}

func TestControlNCFAssign(t *testing.T) {
	f := newControlFixture(t)
	require.NoError(t, f.ncf.CreateRange(&models.NCFRange{
		NCFType:    models.NCFTypeConsumidorFinal,
		RangeStart: 1,
		RangeEnd:   100,
	}))

	resp, body := f.do(t, http.MethodPost, "/ncf/assign", map[string]string{"ncf_type": "02"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "B0200000001", body["ncf"])

	// Exhaustion and missing ranges surface as a conflict.
	resp, _ = f.do(t, http.MethodPost, "/ncf/assign", map[string]string{"ncf_type": "01"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestControlNCFRangeLifecycle(t *testing.T) {
	f := newControlFixture(t)

	resp, body := f.do(t, http.MethodPost, "/ncf/ranges", &models.NCFRange{
		NCFType:    models.NCFTypeCreditoFiscal,
		RangeStart: 1,
		RangeEnd:   500,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	id := uint(body["id"].(float64))

	// Overlapping ranges are rejected.
	resp, _ = f.do(t, http.MethodPost, "/ncf/ranges", &models.NCFRange{
		NCFType:    models.NCFTypeCreditoFiscal,
		RangeStart: 400,
		RangeEnd:   900,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/ncf/ranges/deactivate", map[string]uint{"id": id})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := f.ncf.ActiveRange(models.NCFTypeCreditoFiscal)
	assert.Error(t, err)
}

func TestControlReprintLast(t *testing.T) {
	f := newControlFixture(t)
	f.backend.last = workerInvoice(21)
	require.NoError(t, f.db.Create(&models.PrintRecord{
		InvoiceID: 21,
		NCF:       "B0200000021",
		PrintedAt: time.Now(),
	}).Error)

	resp, body := f.do(t, http.MethodPost, "/reprint", map[string]string{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "B0200000021", body["ncf"])
	require.Len(t, f.adapter.delivered, 1)
	assert.NotZero(t, f.adapter.delivered[0].Len())

	var record models.PrintRecord
	require.NoError(t, f.db.Where("invoice_id = ?", 21).First(&record).Error)
	assert.Equal(t, 1, record.ReprintCount)
}

func TestControlReprintByReferenceNotReady(t *testing.T) {
	f := newControlFixture(t)
	f.backend.byRef = map[string]*models.InvoiceRecord{}

	resp, _ := f.do(t, http.MethodPost, "/reprint", map[string]string{"pos_reference": "Order 9"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, f.adapter.delivered)
}

func TestControlTrigger(t *testing.T) {
	f := newControlFixture(t)

	resp, body := f.do(t, http.MethodPost, "/trigger", map[string]string{"pos_reference": "Order 7"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, []string{"Order 7"}, f.backend.triggered)

	resp, _ = f.do(t, http.MethodPost, "/trigger", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestControlMethodGuards(t *testing.T) {
	f := newControlFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/reprint", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/ncf/assign", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
