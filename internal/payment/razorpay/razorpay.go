package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("razorpay config invalid")
	ErrRequestFailed    = errors.New("razorpay request failed")
	ErrResponseInvalid  = errors.New("razorpay response invalid")
	ErrSignatureInvalid = errors.New("razorpay signature invalid")
	ErrEventInvalid     = errors.New("razorpay webhook event invalid")
)

// Config holds the gateway credentials. KeySecret signs checkout callbacks;
// WebhookSecret is a separate secret signing webhook bodies.
type Config struct {
	GatewayURL    string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

func (c *Config) normalize() {
	c.GatewayURL = strings.TrimRight(strings.TrimSpace(c.GatewayURL), "/")
	c.KeyID = strings.TrimSpace(c.KeyID)
	c.KeySecret = strings.TrimSpace(c.KeySecret)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	if c.GatewayURL == "" {
		c.GatewayURL = "https://api.razorpay.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// ValidateConfig checks the credentials needed for order creation.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.KeyID) == "" {
		return fmt.Errorf("%w: key_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.KeySecret) == "" {
		return fmt.Errorf("%w: key_secret is required", ErrConfigInvalid)
	}
	return nil
}

// CreateOrderInput is the order request. AmountPaise is in minor units.
type CreateOrderInput struct {
	AmountPaise int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Order is the created gateway order.
type Order struct {
	ID          string `json:"id"`
	AmountPaise int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Client talks to the gateway REST API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a gateway client. A nil httpClient gets a default with the
// configured timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	cfg.normalize()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// CreateOrder creates a gateway order for the given amount.
func (c *Client) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if err := ValidateConfig(&c.cfg); err != nil {
		return nil, err
	}
	if input.AmountPaise <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrConfigInvalid)
	}
	currency := strings.TrimSpace(input.Currency)
	if currency == "" {
		currency = "INR"
	}

	payload := map[string]interface{}{
		"amount":   input.AmountPaise,
		"currency": currency,
		"receipt":  input.Receipt,
	}
	if len(input.Notes) > 0 {
		payload["notes"] = input.Notes
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := c.cfg.GatewayURL + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrResponseInvalid)
	}
	return &order, nil
}

// VerifyPaymentSignature checks the checkout callback signature:
// HMAC-SHA256 over "orderId|paymentId" with the key secret, hex encoded,
// compared in constant time.
func VerifyPaymentSignature(orderID, paymentID, signature, keySecret string) error {
	if orderID == "" || paymentID == "" || signature == "" || keySecret == "" {
		return ErrSignatureInvalid
	}
	expected := signHex([]byte(orderID+"|"+paymentID), keySecret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return ErrSignatureInvalid
	}
	return nil
}

// VerifyWebhookSignature checks the webhook signature: HMAC-SHA256 over the
// raw request body with the webhook secret, compared in constant time.
func VerifyWebhookSignature(body []byte, signature, webhookSecret string) error {
	if len(body) == 0 || signature == "" || webhookSecret == "" {
		return ErrSignatureInvalid
	}
	expected := signHex(body, webhookSecret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return ErrSignatureInvalid
	}
	return nil
}

func signHex(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookEvent is the parsed webhook envelope.
type WebhookEvent struct {
	ID          string
	Event       string
	OrderID     string
	PaymentID   string
	AmountPaise int64
}

// ParseWebhookEvent decodes the webhook envelope and pulls out the payment
// entity fields the unlock path needs.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	if len(body) == 0 {
		return nil, ErrEventInvalid
	}
	var envelope struct {
		ID      string `json:"id"`
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
					Amount  int64  `json:"amount"`
				} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventInvalid, err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrEventInvalid)
	}
	return &WebhookEvent{
		ID:          envelope.ID,
		Event:       envelope.Event,
		OrderID:     envelope.Payload.Payment.Entity.OrderID,
		PaymentID:   envelope.Payload.Payment.Entity.ID,
		AmountPaise: envelope.Payload.Payment.Entity.Amount,
	}, nil
}
