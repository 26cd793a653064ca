package delivery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/grandcat/zeroconf"
)

// BridgeServiceType is the mDNS service type the print bridge announces.
const BridgeServiceType = "_fiscalprint._tcp"

// DiscoverBridge browses the local network for a running print bridge and
// returns its base URL. It answers with the first instance found or an error
// once timeout elapses.
func DiscoverBridge(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("error creating mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Browse(ctx, BridgeServiceType, "local.", entries); err != nil {
		return "", fmt.Errorf("error browsing for print bridge: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("no print bridge found on local network")
			}
			if entry == nil || len(entry.AddrIPv4) == 0 {
				continue
			}
			url := fmt.Sprintf("http://%s:%d", entry.AddrIPv4[0], entry.Port)
			log.Printf("[INFO] Discovered print bridge %s at %s", entry.Instance, url)
			return url, nil
		case <-ctx.Done():
			return "", fmt.Errorf("no print bridge found on local network")
		}
	}
}
