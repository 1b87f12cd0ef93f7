// Package torn talks to the Torn City API: the streaming endpoint for push
// chain updates and the v1 REST API for polling.
package torn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"brotherowl/internal/application/port"
)

const userAgent = "BrotherOwl/1.0"

var ErrNoAPIKey = errors.New("torn api key not set")

// factionIdentity lists the "basic" selection fields copied into the payload's
// faction object; members and the rest of the basic block are left out.
var factionIdentity = []string{"ID", "name", "tag", "tag_image"}

// APIError is an error reported by the Torn API in a 200 response body.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("torn api error %d: %s", e.Code, e.Message)
}

func (e *APIError) APICode() int { return e.Code }

type Client struct {
	baseURL    string
	factionID  string
	apiKey     func() string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a REST client. apiKey is called on every request so a
// rotated key is picked up without a restart. requestsPerMinute <= 0 disables
// client-side limiting.
func NewClient(baseURL, factionID string, apiKey func() string, requestsPerMinute int) *Client {
	limit := rate.Inf
	burst := 1
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
		burst = max(1, requestsPerMinute/10)
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		factionID:  strings.TrimSpace(factionID),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// FetchChain requests the faction chain (and basic faction identity).
func (c *Client) FetchChain(ctx context.Context) (*port.ChainData, error) {
	body, err := c.get(ctx, "/faction/"+url.PathEscape(c.factionID), "chain,basic")
	if err != nil {
		return nil, err
	}
	return decodeChain(body)
}

func (c *Client) get(ctx context.Context, path, selections string) ([]byte, error) {
	key := strings.TrimSpace(c.apiKey())
	if key == "" {
		return nil, ErrNoAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("selections", selections)
	params.Set("key", key)
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, redactKey(err, key)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torn http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func decodeChain(body []byte) (*port.ChainData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode chain response: %w", err)
	}

	if raw, ok := fields["error"]; ok && string(raw) != "null" {
		apiErr := &APIError{}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			return nil, fmt.Errorf("decode api error: %w", err)
		}
		return nil, apiErr
	}

	chain, ok := fields["chain"]
	if !ok || string(chain) == "null" {
		return nil, errors.New("response has no chain")
	}

	data := &port.ChainData{Chain: chain}
	faction := make(map[string]json.RawMessage, len(factionIdentity))
	for _, k := range factionIdentity {
		if v, ok := fields[k]; ok {
			faction[k] = v
		}
	}
	if len(faction) > 0 {
		b, err := json.Marshal(faction)
		if err != nil {
			return nil, err
		}
		data.Faction = b
	}
	return data, nil
}

// redactKey keeps the api key out of logged url errors.
func redactKey(err error, key string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, key, "REDACTED")
		return uerr
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ port.ChainFetcher = (*Client)(nil)
