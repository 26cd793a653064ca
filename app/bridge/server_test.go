package bridge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileBridge(t *testing.T) (*Server, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "printer.bin")
	srv := NewServer(Config{
		Printer: PrinterConfig{Type: "file", Address: out},
	})
	return srv, out
}

func postPrint(t *testing.T, srv *Server, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/print", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.handlePrint(rec, req)
	return rec
}

func TestHandlePrintWritesToPrinter(t *testing.T) {
	srv, out := fileBridge(t)

	raw := []byte{0x1B, 0x40, 'h', 'o', 'l', 'a', 0x0A}
	body, _ := json.Marshal(printRequest{Data: base64.StdEncoding.EncodeToString(raw)})

	rec := postPrint(t, srv, body, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, raw, written)
}

func TestHandlePrintRejectsBadBase64(t *testing.T) {
	srv, _ := fileBridge(t)
	body, _ := json.Marshal(printRequest{Data: "no es base64!!!"})
	rec := postPrint(t, srv, body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePrintRejectsEmptyJob(t *testing.T) {
	srv, _ := fileBridge(t)
	body, _ := json.Marshal(printRequest{Data: ""})
	rec := postPrint(t, srv, body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePrintRejectsBadJSON(t *testing.T) {
	srv, _ := fileBridge(t)
	rec := postPrint(t, srv, []byte("{not json"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePrintMethodNotAllowed(t *testing.T) {
	srv, _ := fileBridge(t)
	req := httptest.NewRequest("GET", "/print", nil)
	rec := httptest.NewRecorder()
	srv.handlePrint(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlePrintAuthorization(t *testing.T) {
	hash, err := HashToken("secreto")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "printer.bin")
	srv := NewServer(Config{
		TokenHash: hash,
		Printer:   PrinterConfig{Type: "file", Address: out},
	})

	raw := []byte{0x1B, 0x40}
	body, _ := json.Marshal(printRequest{Data: base64.StdEncoding.EncodeToString(raw)})

	assert.Equal(t, http.StatusUnauthorized, postPrint(t, srv, body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, postPrint(t, srv, body, "incorrecto").Code)
	assert.Equal(t, http.StatusOK, postPrint(t, srv, body, "secreto").Code)
}

func TestHandlePrintPrinterFailure(t *testing.T) {
	srv := NewServer(Config{
		Printer: PrinterConfig{Type: "network", Address: "127.0.0.1", Port: 1},
	})

	raw := []byte{0x1B, 0x40}
	body, _ := json.Marshal(printRequest{Data: base64.StdEncoding.EncodeToString(raw)})
	rec := postPrint(t, srv, body, "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, resp.Error)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := fileBridge(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestDetectType(t *testing.T) {
	assert.Equal(t, "network", (&PrinterConfig{ConnectionType: "ethernet"}).detectType())
	assert.Equal(t, "serial", (&PrinterConfig{ConnectionType: "serial"}).detectType())
	assert.Equal(t, "usb", (&PrinterConfig{Address: "/dev/usb/lp0"}).detectType())
	assert.Equal(t, "file", (&PrinterConfig{Type: "file"}).detectType())
}
