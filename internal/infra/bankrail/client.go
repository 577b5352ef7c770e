// Package bankrail moves batch settlement funds over the partner bank's
// transfer API. Calls are timeout-bounded, retried with backoff and guarded
// by a circuit breaker; the batch id doubles as the idempotency key so a
// retried transfer is never applied twice by the bank.
package bankrail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/infra/resilience"
)

// Client is the HTTP bank rail adapter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	retryCfg   resilience.Config
	logger     *zap.Logger
}

// NewClient creates a bank rail client. The http.Client's timeout bounds
// each transfer attempt.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, retryCfg resilience.Config, logger *zap.Logger) *Client {
	maxConc := retryCfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 10
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(maxConc),
		retryCfg:   retryCfg,
		logger:     logger,
	}
}

type transferRequest struct {
	IdempotencyKey   string `json:"idempotency_key"`
	BatchID          string `json:"batch_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	TransactionCount int    `json:"transaction_count"`
}

type transferResponse struct {
	Reference string `json:"reference"`
	UTRNumber string `json:"utr_number"`
	Status    string `json:"status"`
}

// Transfer submits the batch's net amount to the bank rail.
func (c *Client) Transfer(ctx context.Context, req *domain.RailTransfer) (*domain.RailReceipt, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	var receipt *domain.RailReceipt
	err := resilience.RetryWithBackoff(ctx, c.retryCfg, func() error {
		result, err := c.cb.Execute(func() (any, error) {
			return c.doTransfer(ctx, req)
		})
		if err != nil {
			return err
		}
		receipt = result.(*domain.RailReceipt)
		return nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, &domain.ErrCircuitOpen{Service: "bank-rail"}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.ErrTimeout{Operation: "bank rail transfer"}
		}
		return nil, &domain.ErrExternalRail{BatchID: req.BatchID.String(), Err: err}
	}
	return receipt, nil
}

func (c *Client) doTransfer(ctx context.Context, req *domain.RailTransfer) (*domain.RailReceipt, error) {
	body, err := json.Marshal(transferRequest{
		IdempotencyKey:   req.IdempotencyKey,
		BatchID:          req.BatchID.String(),
		Amount:           req.NetAmount.StringFixed(2),
		Currency:         req.Currency,
		TransactionCount: req.TransactionCount,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("bank rail transfer rejected",
			zap.String("batch_id", req.BatchID.String()),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		return nil, fmt.Errorf("bank rail returned %d", resp.StatusCode)
	}

	var tr transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode rail response: %w", err)
	}

	return &domain.RailReceipt{
		Reference: tr.Reference,
		UTRNumber: tr.UTRNumber,
	}, nil
}
