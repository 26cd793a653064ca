package bridge

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// PrinterConfig describes the physical printer the bridge writes to.
type PrinterConfig struct {
	// Type is "network", "usb", "serial" or "file". Empty auto-detects from
	// ConnectionType and Address the same way the POS printer setup does.
	Type           string `json:"type"`
	ConnectionType string `json:"connection_type"`
	Address        string `json:"address"`
	Port           int    `json:"port"`
}

// detectType resolves an empty Type from the rest of the config.
func (c *PrinterConfig) detectType() string {
	if c.Type != "" {
		return c.Type
	}
	switch {
	case c.ConnectionType == "ethernet" || c.ConnectionType == "network":
		return "network"
	case c.ConnectionType == "serial":
		return "serial"
	case strings.HasPrefix(c.Address, "/dev/usb") || strings.HasPrefix(c.Address, `\\.\`):
		return "usb"
	default:
		return "usb"
	}
}

// openPrinter opens a write channel to the configured printer. The caller
// closes it after the job.
func openPrinter(config *PrinterConfig) (io.WriteCloser, error) {
	switch t := config.detectType(); t {
	case "usb", "serial":
		conn, err := os.OpenFile(config.Address, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s printer at %s: %w", t, config.Address, err)
		}
		return conn, nil

	case "network":
		port := config.Port
		if port == 0 {
			port = 9100
		}
		address := fmt.Sprintf("%s:%d", config.Address, port)
		conn, err := net.DialTimeout("tcp", address, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to network printer at %s: %w", address, err)
		}
		return conn, nil

	case "file":
		f, err := os.Create(config.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file at %s: %w", config.Address, err)
		}
		return f, nil

	default:
		return nil, fmt.Errorf("unsupported printer type: %s", t)
	}
}
