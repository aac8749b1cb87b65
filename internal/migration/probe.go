package migration

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// probeLiveness pings a bot's HTTP API with basic auth as the post-start
// verification step. Failure here triggers rollback. There is no
// dedicated HTTP client library for this concern, so this uses net/http
// directly.
func probeLiveness(ctx context.Context, url, username, password string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return err
	}
	if username != "" {
		req.SetBasicAuth(username, password)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("liveness probe: unexpected status %d", resp.StatusCode)
	}
	return nil
}
