// Package gateway talks to the card payment provider. All money movement is
// a two-phase authorize/capture flow; a reservation that never confirms is
// voided instead of refunded.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mesto/internal/metrics"
)

// ErrUnavailable wraps transport failures and 5xx responses. It is the only
// condition callers retry on; declines are final.
var ErrUnavailable = errors.New("gateway: provider unavailable")

// ErrDeclined is a definitive negative answer from the provider.
var ErrDeclined = errors.New("gateway: transaction declined")

const (
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusPending    = "pending"
)

// Result is the provider's answer to a money operation.
type Result struct {
	UID           string
	Status        string
	CheckoutToken string
}

// Gateway is the money-movement surface the engine depends on.
type Gateway interface {
	Authorize(ctx context.Context, creds Credentials, amount int64, currency, description, trackingID string) (Result, error)
	Capture(ctx context.Context, creds Credentials, parentUID string, amount int64) (Result, error)
	Void(ctx context.Context, creds Credentials, parentUID string, amount int64) (Result, error)
	Refund(ctx context.Context, creds Credentials, parentUID string, amount int64, reason string) (Result, error)
}

// Credentials identify the venue's merchant account.
type Credentials struct {
	ShopID    string
	SecretKey string
}

type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
	logger  *zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, retry RetryPolicy, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
		logger:  logger,
	}
}

type transactionRequest struct {
	Request struct {
		Amount      int64  `json:"amount"`
		Currency    string `json:"currency,omitempty"`
		Description string `json:"description,omitempty"`
		TrackingID  string `json:"tracking_id,omitempty"`
		ParentUID   string `json:"parent_uid,omitempty"`
		Reason      string `json:"reason,omitempty"`
	} `json:"request"`
}

type transactionResponse struct {
	Transaction struct {
		UID           string `json:"uid"`
		Status        string `json:"status"`
		Message       string `json:"message"`
		CheckoutToken string `json:"checkout_token"`
	} `json:"transaction"`
}

func (c *Client) Authorize(ctx context.Context, creds Credentials, amount int64, currency, description, trackingID string) (Result, error) {
	var req transactionRequest
	req.Request.Amount = amount
	req.Request.Currency = currency
	req.Request.Description = description
	req.Request.TrackingID = trackingID
	return c.call(ctx, creds, "/transactions/authorizations", req)
}

func (c *Client) Capture(ctx context.Context, creds Credentials, parentUID string, amount int64) (Result, error) {
	var req transactionRequest
	req.Request.Amount = amount
	req.Request.ParentUID = parentUID
	return c.call(ctx, creds, "/transactions/captures", req)
}

func (c *Client) Void(ctx context.Context, creds Credentials, parentUID string, amount int64) (Result, error) {
	var req transactionRequest
	req.Request.Amount = amount
	req.Request.ParentUID = parentUID
	return c.call(ctx, creds, "/transactions/voids", req)
}

func (c *Client) Refund(ctx context.Context, creds Credentials, parentUID string, amount int64, reason string) (Result, error) {
	var req transactionRequest
	req.Request.Amount = amount
	req.Request.ParentUID = parentUID
	req.Request.Reason = reason
	return c.call(ctx, creds, "/transactions/refunds", req)
}

// call posts the transaction, retrying only transport failures and 5xx
// answers. A decline comes back as ErrDeclined immediately.
func (c *Client) call(ctx context.Context, creds Credentials, path string, req transactionRequest) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncGatewayRetry()
			c.logger.Warn().
				Str("path", path).
				Int("attempt", attempt).
				Err(lastErr).
				Msg("retrying gateway call")
			if err := c.retry.Sleep(ctx, attempt); err != nil {
				return Result{}, err
			}
		}

		result, err := c.post(ctx, creds, path, body)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, lastErr
}

func (c *Client) post(ctx context.Context, creds Credentials, path string, body []byte) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(creds.ShopID, creds.SecretKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var tr transactionResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	result := Result{
		UID:           tr.Transaction.UID,
		Status:        tr.Transaction.Status,
		CheckoutToken: tr.Transaction.CheckoutToken,
	}
	if resp.StatusCode >= 400 || tr.Transaction.Status == StatusFailed {
		return Result{}, fmt.Errorf("%w: %s", ErrDeclined, tr.Transaction.Message)
	}
	return result, nil
}
