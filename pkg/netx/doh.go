package netx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// DoHClient resolves hostnames over DNS-over-HTTPS, keeping lookups off
// the local resolver. The rebinding counter alternates real answers with
// an attacker-supplied address to exercise DNS-rebinding defenses.
type DoHClient struct {
	client   *http.Client
	endpoint string
	rebinds  atomic.Uint64
}

// NewDoHClient creates a resolver against the given JSON DoH endpoint.
func NewDoHClient(endpoint string) *DoHClient {
	return &DoHClient{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: endpoint,
	}
}

type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

type dohAnswer struct {
	Type int    `json:"type"`
	Data string `json:"data"`
}

// Resolve returns one address for domain. When rebindTarget is non-empty,
// every second call returns it instead of the real answer.
func (c *DoHClient) Resolve(ctx context.Context, domain, rebindTarget string) (string, error) {
	if rebindTarget != "" {
		if (c.rebinds.Add(1)-1)%2 == 1 {
			return rebindTarget, nil
		}
	}

	url := fmt.Sprintf("%s?name=%s&type=A", c.endpoint, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build doh request: %w", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("doh query for %s: %w", domain, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read doh response: %w", err)
	}

	var parsed dohResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse doh response: %w", err)
	}

	for _, ans := range parsed.Answer {
		// Type 1 is an A record; the JSON endpoint may also return
		// CNAME chains first.
		if ans.Type == 1 {
			return ans.Data, nil
		}
	}
	if len(parsed.Answer) > 0 {
		return parsed.Answer[0].Data, nil
	}

	return "", fmt.Errorf("no DNS record found for %s", domain)
}
