// Package cashfree wraps the Cashfree payment links API.
package cashfree

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
)

// Link states returned by GET /links/{id}.
const (
	LinkStatusActive        = "ACTIVE"
	LinkStatusPaid          = "PAID"
	LinkStatusPartiallyPaid = "PARTIALLY_PAID"
	LinkStatusExpired       = "EXPIRED"
	LinkStatusCancelled     = "CANCELLED"
)

type Client struct {
	transport  *httpclient.Client
	baseURL    string
	appID      string
	secretKey  string
	apiVersion string
	notifyURL  string
}

func NewClient(cfg config.CashfreeConfig, transport *httpclient.Client) (*Client, error) {
	switch {
	case strings.TrimSpace(cfg.BaseURL) == "":
		return nil, errors.New("cashfree base url is required")
	case cfg.AppID == "" || cfg.SecretKey == "":
		return nil, errors.New("cashfree app id and secret key are required")
	case strings.TrimSpace(cfg.NotifyURL) == "":
		return nil, errors.New("cashfree notify url is required")
	case transport == nil:
		return nil, errors.New("http transport is required")
	}
	return &Client{
		transport:  transport,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		secretKey:  cfg.SecretKey,
		apiVersion: cfg.APIVersion,
		notifyURL:  cfg.NotifyURL,
	}, nil
}

// Customer is required by Cashfree; Phone is the only mandatory field.
type Customer struct {
	Phone string `json:"customer_phone"`
	Email string `json:"customer_email,omitempty"`
	Name  string `json:"customer_name,omitempty"`
}

type CreateLinkRequest struct {
	LinkID    string
	Amount    decimal.Decimal
	Purpose   string
	ReturnURL string
	Customer  Customer
}

// Link is the payment link resource.
type Link struct {
	CFLinkID       int64           `json:"cf_link_id"`
	LinkID         string          `json:"link_id"`
	LinkStatus     string          `json:"link_status"`
	LinkURL        string          `json:"link_url"`
	LinkAmount     decimal.Decimal `json:"link_amount"`
	LinkAmountPaid decimal.Decimal `json:"link_amount_paid"`
}

type linkPayload struct {
	LinkID       string     `json:"link_id"`
	LinkAmount   float64    `json:"link_amount"`
	LinkCurrency string     `json:"link_currency"`
	LinkPurpose  string     `json:"link_purpose"`
	Customer     Customer   `json:"customer_details"`
	LinkMeta     linkMeta   `json:"link_meta"`
	LinkNotify   linkNotify `json:"link_notify"`
}

type linkMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url"`
}

type linkNotify struct {
	SendSMS   bool `json:"send_sms"`
	SendEmail bool `json:"send_email"`
}

// CreateLink registers a payment link. The webhook target always comes from
// configuration, never from the return URL.
func (c *Client) CreateLink(ctx context.Context, req CreateLinkRequest) (*Link, error) {
	if req.LinkID == "" || !req.Amount.IsPositive() {
		return nil, errors.New("link id and positive amount are required")
	}
	if strings.TrimSpace(req.Customer.Phone) == "" {
		return nil, errors.New("customer phone is required")
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = "Order payment"
	}
	body, err := httpclient.JSONBody(linkPayload{
		LinkID:       req.LinkID,
		LinkAmount:   req.Amount.Round(2).InexactFloat64(),
		LinkCurrency: "INR",
		LinkPurpose:  purpose,
		Customer:     req.Customer,
		LinkMeta:     linkMeta{ReturnURL: req.ReturnURL, NotifyURL: c.notifyURL},
	})
	if err != nil {
		return nil, fmt.Errorf("encode link request: %w", err)
	}

	var link Link
	if err := c.transport.DoJSON(ctx, httpclient.Request{
		Operation: "create_link",
		Method:    http.MethodPost,
		URL:       c.baseURL + "/links",
		Header:    c.headers(),
		Body:      body,
	}, &link); err != nil {
		return nil, err
	}
	if link.LinkURL == "" {
		return nil, &httpclient.DecodeError{Err: errors.New("link response missing link_url")}
	}
	return &link, nil
}

// GetLink fetches a payment link by our link id.
func (c *Client) GetLink(ctx context.Context, linkID string) (*Link, error) {
	if strings.TrimSpace(linkID) == "" {
		return nil, errors.New("link id is required")
	}
	var link Link
	if err := c.transport.DoJSON(ctx, httpclient.Request{
		Operation: "get_link",
		Method:    http.MethodGet,
		URL:       c.baseURL + "/links/" + url.PathEscape(linkID),
		Header:    c.headers(),
	}, &link); err != nil {
		return nil, err
	}
	if link.LinkStatus == "" {
		return nil, &httpclient.DecodeError{Err: errors.New("link response missing link_status")}
	}
	return &link, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("x-client-id", c.appID)
	h.Set("x-client-secret", c.secretKey)
	h.Set("x-api-version", c.apiVersion)
	return h
}

// WebhookEvent is the payment webhook body for link payments.
type WebhookEvent struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID   string            `json:"order_id"`
			OrderTags map[string]string `json:"order_tags"`
		} `json:"order"`
		Payment struct {
			CFPaymentID   any    `json:"cf_payment_id"`
			PaymentStatus string `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

// LinkID returns the link id tag Cashfree attaches to link-originated orders.
func (e WebhookEvent) LinkID() string {
	return strings.TrimSpace(e.Data.Order.OrderTags["link_id"])
}

// Signature computes base64(HMAC-SHA256(timestamp + body)) with the secret key.
func Signature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the x-webhook-signature header in constant time.
func VerifySignature(secret, timestamp, signature string, body []byte) bool {
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}
	want := Signature(secret, timestamp, body)
	return hmac.Equal([]byte(want), []byte(strings.TrimSpace(signature)))
}
