package delivery

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"FiscalAgent/app/receipt"
)

// AutomationAdapter delivers receipts through the print-automation service
// over a persistent websocket. The service fans jobs out to the printers it
// manages and acknowledges each job once its transport accepts the bytes.
type AutomationAdapter struct {
	url     string
	apiKey  string
	printer string

	mu   sync.Mutex
	conn *websocket.Conn
}

type automationJob struct {
	Type    string `json:"type"`
	Printer string `json:"printer,omitempty"`
	Data    string `json:"data"`
	APIKey  string `json:"api_key,omitempty"`
}

type automationAck struct {
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NewAutomationAdapter creates an adapter for the automation service at url
// (ws:// or wss://). printer optionally names a specific printer the service
// manages; empty means the service's default.
func NewAutomationAdapter(url, apiKey, printer string) *AutomationAdapter {
	return &AutomationAdapter{url: url, apiKey: apiKey, printer: printer}
}

func (a *AutomationAdapter) Name() string { return "automation" }

// ensureConnected dials the service if no live connection exists. Callers
// must hold a.mu.
func (a *AutomationAdapter) ensureConnected(ctx context.Context) error {
	if a.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("error connecting to automation service: %w", err)
	}
	a.conn = conn
	log.Printf("[INFO] Connected to automation service at %s", a.url)
	return nil
}

// Deliver sends the stream as a single raw_print job and waits for the
// service's acknowledgment. A transport failure drops the connection so the
// next attempt redials.
func (a *AutomationAdapter) Deliver(ctx context.Context, stream *receipt.CommandStream) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureConnected(ctx); err != nil {
		log.Printf("[ERROR] Automation service unreachable: %v", err)
		return err
	}

	job := automationJob{
		Type:    "raw_print",
		Printer: a.printer,
		Data:    base64.StdEncoding.EncodeToString(stream.Bytes()),
		APIKey:  a.apiKey,
	}

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	a.conn.SetWriteDeadline(deadline)
	if err := a.conn.WriteJSON(job); err != nil {
		a.drop()
		log.Printf("[ERROR] Failed to send print job: %v", err)
		return fmt.Errorf("error sending print job: %w", err)
	}

	a.conn.SetReadDeadline(deadline)
	var ack automationAck
	if err := a.conn.ReadJSON(&ack); err != nil {
		a.drop()
		log.Printf("[ERROR] No acknowledgment from automation service: %v", err)
		return fmt.Errorf("error reading acknowledgment: %w", err)
	}

	if !ack.OK {
		log.Printf("[ERROR] Automation service rejected job: %s", ack.Error)
		return fmt.Errorf("automation service rejected job: %s", ack.Error)
	}

	log.Printf("[INFO] Receipt delivered to automation service (%d bytes)", stream.Len())
	return nil
}

// Close shuts the websocket down cleanly.
func (a *AutomationAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	a.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := a.conn.Close()
	a.conn = nil
	return err
}

func (a *AutomationAdapter) drop() {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
}
