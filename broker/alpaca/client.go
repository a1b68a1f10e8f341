// Package alpaca is a REST client for the Alpaca trading and market-data
// APIs implementing broker.Brokerage.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// PaperURL is the paper-trading API.
	PaperURL = "https://paper-api.alpaca.markets"
	// LiveURL is the live-trading API.
	LiveURL = "https://api.alpaca.markets"
	// DataURL is the market-data API.
	DataURL = "https://data.alpaca.markets"
	// StreamURL is the IEX bar stream.
	StreamURL = "wss://stream.data.alpaca.markets/v2/iex"

	// EnvKeyID and EnvSecretKey name the credential environment variables.
	EnvKeyID     = "APCA_API_KEY_ID"
	EnvSecretKey = "APCA_API_SECRET_KEY"
)

// BaseURL maps an environment name to the trading API URL.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "paper":
		return PaperURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown alpaca env %q (want paper|live)", env)
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("alpaca http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("alpaca http %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	dataURL    string
	keyID      string
	secret     string
	feed       string
	httpClient *http.Client
}

// NewClient returns a client for the given trading and data base URLs.
func NewClient(keyID, secret, baseURL, dataURL string) *Client {
	if baseURL == "" {
		baseURL = PaperURL
	}
	if dataURL == "" {
		dataURL = DataURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		dataURL: strings.TrimRight(dataURL, "/"),
		keyID:   keyID,
		secret:  secret,
		feed:    "iex",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, base, path string, query url.Values, body, out any) error {
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		_ = json.Unmarshal(b, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
