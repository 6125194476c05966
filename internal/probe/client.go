package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BetterCallFirewall/Scanhound/internal/rules"
)

// maxEvidenceBody caps how much of the response is captured as evidence.
const maxEvidenceBody = 1 << 20

// Client is the safe HTTP client that gathers scan evidence from a
// target endpoint. Redirects are disabled so the evidence describes the
// addressed endpoint, not wherever it points to.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
}

// ClientConfig configures the probe client.
type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// NewClient creates a probe client with safe defaults.
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "Scanhound-Probe/1.0"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: config,
	}
}

// Probe issues one request against the endpoint and returns the captured
// evidence. A random canary value is appended as a query parameter so the
// reflected-input rule can recognize echoed input.
func (c *Client) Probe(ctx context.Context, endpointKey, method, target string) (*rules.Evidence, error) {
	canary := "shound" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]

	probeURL, err := withCanary(target, canary)
	if err != nil {
		return nil, fmt.Errorf("building probe url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, probeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEvidenceBody))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &rules.Evidence{
		EndpointKey:     endpointKey,
		Method:          method,
		URL:             target,
		StatusCode:      resp.StatusCode,
		RequestHeaders:  req.Header.Clone(),
		ResponseHeaders: resp.Header.Clone(),
		ResponseBody:    string(body),
		Canary:          canary,
	}, nil
}

// withCanary appends the canary as a query parameter without disturbing
// the parameters already present.
func withCanary(target, canary string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	q.Set("shound", canary)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
