/**
 * @description
 * This package provides a client for the Raven Atlas banking API. It wraps
 * authenticated HTTP calls to Raven's endpoints, normalizes the provider's
 * `{status, message, data}` envelope into a decoded payload or a typed
 * *Error, and retries transient failures with exponential backoff.
 *
 * Retry policy: network errors and 5xx responses are retried with a doubling
 * delay (base 1s, capped at 30s) scaled by a random jitter factor. 4xx
 * responses and envelope-level "fail" statuses are terminal and never
 * retried.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, math/rand, net/http, time: Standard Go libraries.
 */
package ravenclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultMaxRetries = 3
	baseRetryDelay    = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// Error is a terminal provider failure: a "fail" envelope, a 4xx response,
// or a transient failure that exhausted its retries.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("raven api error (status %d): %s", e.StatusCode, e.Message)
}

// envelope is the fixed response shape of every Raven Atlas endpoint.
type envelope struct {
	Status  string          `json:"status"` // "success" or "fail"
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client is a client for the Raven Atlas API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
}

// NewClient creates a new Raven Atlas API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxRetries: defaultMaxRetries,
	}
}

// CreateAccountRequest provisions a virtual collection account.
type CreateAccountRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Amount    int64  `json:"amount,omitempty"`
}

// CreateAccountResponse is the decoded data of a successful account creation.
type CreateAccountResponse struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Bank          string `json:"bank"`
	BankCode      string `json:"bank_code,omitempty"`
}

// TransferRequest initiates a transfer to an external bank account.
type TransferRequest struct {
	Amount        int64  `json:"amount"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Narration     string `json:"narration"`
	Reference     string `json:"reference"`
	Currency      string `json:"currency"`
}

// TransferResponse is the decoded data of a transfer initiation or lookup.
type TransferResponse struct {
	ID        string `json:"id,omitempty"`
	TRXRef    string `json:"trx_ref"`
	Reference string `json:"merchant_ref,omitempty"`
	Status    string `json:"status"`
	Fee       int64  `json:"fee,omitempty"`
}

// CreateAccount provisions a provider-backed collection account.
func (c *Client) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResponse, error) {
	var out CreateAccountResponse
	if err := c.do(ctx, http.MethodPost, "/pwbt/generate_account", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateTransfer starts a transfer on the bank rail. The returned status is
// provisional; the final outcome arrives by webhook.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	var out TransferResponse
	if err := c.do(ctx, http.MethodPost, "/transfers/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransferStatus queries the provider's current view of a transfer.
func (c *Client) GetTransferStatus(ctx context.Context, reference string) (*TransferResponse, error) {
	var out TransferResponse
	path := "/transfers/status?trx_ref=" + url.QueryEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do executes one logical API call with the retry policy, decoding the
// success payload into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			log.Printf("level=warn component=raven_client path=%s attempt=%d delay=%s msg=\"retrying after transient failure\" err=%q", path, attempt, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := c.attempt(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}

	return &Error{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("retries exhausted: %v", lastErr)}
}

// attempt performs a single HTTP round trip. The bool return reports whether
// the failure is transient and worth retrying.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Network failure; the request may still retry.
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return true, &Error{StatusCode: resp.StatusCode, Message: trimmedBody(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return false, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || env.Status != "success" {
		message := env.Message
		if message == "" {
			message = trimmedBody(respBody)
		}
		return false, &Error{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return false, nil
}

// backoffDelay returns the wait before the given retry attempt: the base
// delay doubled per attempt, capped, then scaled by a jitter factor in
// [0.5, 1.5) so synchronized clients fan out.
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay << (attempt - 1)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

func trimmedBody(body []byte) string {
	const max = 256
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
