// Package phonepe is a client for the PhonePe standard checkout v2 APIs.
package phonepe

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
)

// Order states reported by the status API and webhooks.
const (
	StatePending   = "PENDING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
)

type Client struct {
	transport *httpclient.Client
	baseURL   string
	tokens    TokenProvider
}

func NewClient(cfg config.PhonePeConfig, transport *httpclient.Client, tokens TokenProvider) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("phonepe base url is required")
	}
	if transport == nil || tokens == nil {
		return nil, errors.New("phonepe transport and token provider are required")
	}
	return &Client{
		transport: transport,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		tokens:    tokens,
	}, nil
}

// PayRequest starts a checkout. AmountPaise is in the smallest currency unit.
type PayRequest struct {
	MerchantOrderID string
	AmountPaise     int64
	RedirectURL     string
	Message         string
}

type PayResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
	RedirectURL string `json:"redirectUrl"`
}

// OrderStatus is the subset of the status response the payment service reads.
type OrderStatus struct {
	OrderID         string `json:"orderId"`
	MerchantOrderID string `json:"merchantOrderId"`
	State           string `json:"state"`
	Amount          int64  `json:"amount"`
}

// Pay creates a checkout order and returns the hosted redirect URL.
func (c *Client) Pay(ctx context.Context, req PayRequest) (*PayResponse, error) {
	if req.MerchantOrderID == "" || req.AmountPaise <= 0 {
		return nil, errors.New("merchant order id and positive amount are required")
	}
	body, err := httpclient.JSONBody(map[string]any{
		"merchantOrderId": req.MerchantOrderID,
		"amount":          req.AmountPaise,
		"paymentFlow": map[string]any{
			"type":    "PG_CHECKOUT",
			"message": req.Message,
			"merchantUrls": map[string]string{
				"redirectUrl": req.RedirectURL,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode pay request: %w", err)
	}

	var resp PayResponse
	if err := c.authorized(ctx, httpclient.Request{
		Operation: "pay",
		Method:    http.MethodPost,
		URL:       c.baseURL + "/checkout/v2/pay",
		Body:      body,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.RedirectURL == "" {
		return nil, &httpclient.DecodeError{Err: errors.New("pay response missing redirectUrl")}
	}
	return &resp, nil
}

// OrderStatus fetches the current state of a checkout by merchant order id.
func (c *Client) OrderStatus(ctx context.Context, merchantOrderID string) (*OrderStatus, error) {
	if strings.TrimSpace(merchantOrderID) == "" {
		return nil, errors.New("merchant order id is required")
	}
	var resp OrderStatus
	if err := c.authorized(ctx, httpclient.Request{
		Operation: "order_status",
		Method:    http.MethodGet,
		URL:       fmt.Sprintf("%s/checkout/v2/order/%s/status", c.baseURL, url.PathEscape(merchantOrderID)),
	}, &resp); err != nil {
		return nil, err
	}
	if resp.State == "" {
		return nil, &httpclient.DecodeError{Err: errors.New("status response missing state")}
	}
	return &resp, nil
}

// authorized attaches the bearer token. A 401 drops the cached token so the next
// call fetches a fresh one.
func (c *Client) authorized(ctx context.Context, req httpclient.Request, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("phonepe auth: %w", err)
	}
	req.Header = http.Header{}
	req.Header.Set("Authorization", "O-Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	err = c.transport.DoJSON(ctx, req, out)
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	return err
}

// WebhookEvent is the callback body PhonePe posts for order state changes.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		OrderID         string `json:"orderId"`
		MerchantOrderID string `json:"merchantOrderId"`
		State           string `json:"state"`
		Amount          int64  `json:"amount"`
	} `json:"payload"`
}

// WebhookAuthorization is the header value PhonePe sends: hex SHA-256 of "username:password".
func WebhookAuthorization(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// VerifyWebhookAuthorization compares header against the configured credentials in
// constant time. An optional "SHA256 " prefix is accepted.
func VerifyWebhookAuthorization(header, username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	got := strings.TrimSpace(header)
	if len(got) > 7 && strings.EqualFold(got[:7], "SHA256 ") {
		got = strings.TrimSpace(got[7:])
	}
	want := WebhookAuthorization(username, password)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) == 1
}
