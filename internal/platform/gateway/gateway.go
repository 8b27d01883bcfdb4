// Package gateway defines the payment gateway port and its HTTP client.
// Every call is bounded by the configured timeout and carries an idempotency
// key so the provider deduplicates retried requests.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/marketplace-settlement/internal/config"
)

// ErrDeclined indicates the provider rejected the operation. Declines are
// terminal; retrying with the same idempotency key returns the same outcome.
var ErrDeclined = errors.New("payment gateway declined the operation")

// ChargeRequest captures a buyer card charge
type ChargeRequest struct {
	BuyerID        string `json:"buyer_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RefundRequest reverses a previous charge, fully or partially
type RefundRequest struct {
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	IdempotencyKey   string `json:"idempotency_key"`
}

// PayoutRequest transfers wallet funds to an external destination
type PayoutRequest struct {
	Destination    string `json:"destination"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Result is the provider's confirmation of a successful operation
type Result struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// PaymentGateway is the port to the external money-movement provider
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*Result, error)
	Payout(ctx context.Context, req PayoutRequest) (*Result, error)
}

// HTTPGateway implements PaymentGateway against a provider's REST API
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPGateway creates a gateway client with the configured timeout.
// A request that outlives the timeout is treated as a failure by callers;
// the idempotency key makes the eventual retry safe.
func NewHTTPGateway(logger *slog.Logger, cfg *config.GatewayConfig) *HTTPGateway {
	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	return g.post(ctx, "/v1/charges", req.IdempotencyKey, req)
}

func (g *HTTPGateway) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	return g.post(ctx, "/v1/refunds", req.IdempotencyKey, req)
}

func (g *HTTPGateway) Payout(ctx context.Context, req PayoutRequest) (*Result, error) {
	return g.post(ctx, "/v1/payouts", req.IdempotencyKey, req)
}

func (g *HTTPGateway) post(ctx context.Context, path string, idempotencyKey string, payload interface{}) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Error("Gateway request failed", "path", path, "error", err)
		return nil, fmt.Errorf("gateway request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result Result
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to decode gateway response: %w", err)
		}
		return &result, nil
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusPaymentRequired:
		g.logger.Warn("Gateway declined operation", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s", ErrDeclined, string(respBody))
	default:
		g.logger.Error("Gateway returned unexpected status", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("gateway request to %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}
}
