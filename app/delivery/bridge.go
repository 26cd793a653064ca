package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"FiscalAgent/app/receipt"
)

// DefaultBridgeURL is where the local print bridge listens when no explicit
// address is configured and mDNS discovery is disabled.
const DefaultBridgeURL = "http://127.0.0.1:5001"

// BridgeAdapter delivers receipts to the local print bridge over HTTP. The
// bridge expects a JSON body {"data": "<base64 of the raw stream>"} on
// POST /print.
type BridgeAdapter struct {
	baseURL string
	token   string
	client  *http.Client
}

type bridgePrintRequest struct {
	Data string `json:"data"`
}

type bridgeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewBridgeAdapter creates an adapter for the bridge at baseURL. token may be
// empty when the bridge runs without authentication.
func NewBridgeAdapter(baseURL, token string) *BridgeAdapter {
	if baseURL == "" {
		baseURL = DefaultBridgeURL
	}
	return &BridgeAdapter{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *BridgeAdapter) Name() string { return "bridge" }

// Deliver posts the flattened stream to the bridge and waits for the
// synchronous result. The bridge holds the request open until the printer
// transport accepts the payload.
func (a *BridgeAdapter) Deliver(ctx context.Context, stream *receipt.CommandStream) error {
	payload := bridgePrintRequest{
		Data: base64.StdEncoding.EncodeToString(stream.Bytes()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding print request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/print", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("[ERROR] Bridge unreachable at %s: %v", a.baseURL, err)
		return fmt.Errorf("error reaching print bridge: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading bridge response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var br bridgeResponse
		if json.Unmarshal(respBody, &br) == nil && br.Error != "" {
			log.Printf("[ERROR] Bridge rejected print job: %s", br.Error)
			return fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, br.Error)
		}
		log.Printf("[ERROR] Bridge rejected print job: status %d", resp.StatusCode)
		return fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, string(respBody))
	}

	log.Printf("[INFO] Receipt delivered to bridge (%d bytes)", stream.Len())
	return nil
}

// Health checks the bridge's /health endpoint.
func (a *BridgeAdapter) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", a.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("error reaching print bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge health returned status %d", resp.StatusCode)
	}
	return nil
}
