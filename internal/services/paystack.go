package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"Bootcamp/internal/config"
)

type PaystackService struct {
	SecretKey string
	BaseURL   string
	client    *http.Client
}

type InitializePaymentResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type VerifyPaymentResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID              int64           `json:"id"`
		Status          string          `json:"status"`
		Reference       string          `json:"reference"`
		Amount          int64           `json:"amount"` // Amount in kobo (₦1 = 100 kobo)
		GatewayResponse string          `json:"gateway_response"`
		PaidAt          string          `json:"paid_at"`
		Channel         string          `json:"channel"`
		Currency        string          `json:"currency"`
		Metadata        json.RawMessage `json:"metadata"`
		Customer        struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// WebhookEvent is the body Paystack posts to the webhook endpoint.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		Currency  string          `json:"currency"`
		PaidAt    string          `json:"paid_at"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// NewPaystackService creates a new Paystack service instance
func NewPaystackService(cfg config.PaystackConfig) *PaystackService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &PaystackService{
		SecretKey: cfg.SecretKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
	}
}

// makeRequest makes HTTP request to Paystack API
func (ps *PaystackService) makeRequest(ctx context.Context, method, endpoint string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, ps.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+ps.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	return ps.client.Do(req)
}

// InitializePayment initializes a payment transaction
func (ps *PaystackService) InitializePayment(ctx context.Context, in InitializeRequest) (*InitializeResponse, error) {
	currency := in.Currency
	if currency == "" {
		currency = "NGN"
	}
	payload := map[string]interface{}{
		"email":     in.Email,
		"amount":    in.Amount.Shift(2).IntPart(),
		"reference": in.Reference,
		"currency":  currency,
		"metadata":  in.Metadata,
	}
	if in.CallbackURL != "" {
		payload["callback_url"] = in.CallbackURL
	}

	resp, err := ps.makeRequest(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result InitializePaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Status {
		return nil, fmt.Errorf("paystack error: %s", result.Message)
	}

	return &InitializeResponse{
		AuthorizationURL: result.Data.AuthorizationURL,
		AccessCode:       result.Data.AccessCode,
		Reference:        result.Data.Reference,
	}, nil
}

// VerifyPayment fetches the raw verification response for a reference.
func (ps *PaystackService) VerifyPayment(ctx context.Context, reference string) (*VerifyPaymentResponse, error) {
	resp, err := ps.makeRequest(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result VerifyPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrGatewayNotFound
	}
	if !result.Status {
		if strings.Contains(strings.ToLower(result.Message), "not found") {
			return nil, ErrGatewayNotFound
		}
		return nil, fmt.Errorf("paystack error: %s", result.Message)
	}

	return &result, nil
}

// VerifyTransaction implements PaymentGateway.
func (ps *PaystackService) VerifyTransaction(ctx context.Context, reference string) (*GatewayTransaction, error) {
	result, err := ps.VerifyPayment(ctx, reference)
	if err != nil {
		return nil, err
	}
	return &GatewayTransaction{
		Reference: result.Data.Reference,
		Status:    result.Data.Status,
		Amount:    decimal.New(result.Data.Amount, -2),
		Currency:  result.Data.Currency,
		PaidAt:    result.Data.PaidAt,
		Metadata:  decodeMetadata(result.Data.Metadata),
	}, nil
}

// VerifyWebhookSignature checks the x-paystack-signature header, an
// HMAC-SHA512 of the raw body keyed with the secret key.
func (ps *PaystackService) VerifyWebhookSignature(body []byte, signature string) bool {
	if ps.SecretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(ps.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// decodeMetadata accepts an object, a JSON-encoded object string, or
// anything else (which yields nil). Paystack returns "" for no metadata.
func decodeMetadata(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	return nil
}

// Metadata returns the event's metadata as a map.
func (ev *WebhookEvent) Metadata() map[string]any {
	return decodeMetadata(ev.Data.Metadata)
}
