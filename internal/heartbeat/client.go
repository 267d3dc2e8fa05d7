package heartbeat

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Probe performs one heartbeat check against the given URL. It is used by the
// healthcheck command as a container health probe.
func Probe(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build heartbeat request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heartbeat probe returned status %d", resp.StatusCode)
	}
	return nil
}
