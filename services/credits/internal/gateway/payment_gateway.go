package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pixelmint/pkg/config"
	"pixelmint/pkg/logger"

	"github.com/shopspring/decimal"
)

// PaymentVerification is the provider's answer for one payment reference.
type PaymentVerification struct {
	Success  bool            `json:"success"`
	PayerID  string          `json:"payer_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// PaymentGateway verifies payment references with the external payment
// provider. Payments themselves are collected by the web front end; this
// service only confirms them before crediting.
type PaymentGateway interface {
	VerifyPayment(ctx context.Context, reference string, expectedAmount decimal.Decimal) (*PaymentVerification, error)
}

type httpPaymentGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewPaymentGateway(cfg *config.Config, log *logger.Logger) PaymentGateway {
	return &httpPaymentGateway{
		baseURL: cfg.PaymentProviderURL,
		apiKey:  cfg.PaymentProviderKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: log,
	}
}

type verifyPaymentRequest struct {
	Reference      string `json:"reference"`
	ExpectedAmount string `json:"expected_amount"`
}

func (g *httpPaymentGateway) VerifyPayment(ctx context.Context, reference string, expectedAmount decimal.Decimal) (*PaymentVerification, error) {
	body, err := json.Marshal(verifyPaymentRequest{
		Reference:      reference,
		ExpectedAmount: expectedAmount.StringFixed(2),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payments/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("Payment provider returned status %d for reference %s", resp.StatusCode, reference)
		return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	var verification PaymentVerification
	if err := json.NewDecoder(resp.Body).Decode(&verification); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	return &verification, nil
}
