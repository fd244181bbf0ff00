// Package shiprocket registers shipments with the Shiprocket courier aggregator.
package shiprocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
)

// tokenLifetime is kept below the provider's ten day validity.
const tokenLifetime = 9 * 24 * time.Hour

type Client struct {
	transport      *httpclient.Client
	baseURL        string
	email          string
	password       string
	pickupLocation string
	now            func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClient(cfg config.ShippingConfig, transport *httpclient.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("shipping base url is required")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errors.New("shipping credentials are required")
	}
	if transport == nil {
		return nil, errors.New("http transport is required")
	}
	return &Client{
		transport:      transport,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		email:          cfg.Email,
		password:       cfg.Password,
		pickupLocation: cfg.PickupLocation,
		now:            time.Now,
	}, nil
}

type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

// OrderRequest is one package to hand to a courier. Address fields are owned by
// the customer service and may be empty here.
type OrderRequest struct {
	OrderID           string      `json:"order_id"`
	OrderDate         string      `json:"order_date"`
	PickupLocation    string      `json:"pickup_location"`
	CustomerName      string      `json:"billing_customer_name,omitempty"`
	Address           string      `json:"billing_address,omitempty"`
	City              string      `json:"billing_city,omitempty"`
	Pincode           string      `json:"billing_pincode,omitempty"`
	State             string      `json:"billing_state,omitempty"`
	Country           string      `json:"billing_country,omitempty"`
	Phone             string      `json:"billing_phone,omitempty"`
	ShippingIsBilling bool        `json:"shipping_is_billing"`
	Items             []OrderItem `json:"order_items"`
	PaymentMethod     string      `json:"payment_method"`
	SubTotal          float64     `json:"sub_total"`
	Length            float64     `json:"length"`
	Breadth           float64     `json:"breadth"`
	Height            float64     `json:"height"`
	Weight            float64     `json:"weight"`
}

type OrderResponse struct {
	OrderID    int64  `json:"order_id"`
	ShipmentID int64  `json:"shipment_id"`
	Status     string `json:"status"`
	AWBCode    string `json:"awb_code"`
}

// TrackingNumber prefers the courier AWB and falls back to the shipment id.
func (r OrderResponse) TrackingNumber() string {
	if r.AWBCode != "" {
		return r.AWBCode
	}
	if r.ShipmentID != 0 {
		return strconv.FormatInt(r.ShipmentID, 10)
	}
	return ""
}

// CreateOrder registers an adhoc order. Default parcel dimensions are applied
// when the caller leaves them unset.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.OrderID == "" || len(req.Items) == 0 {
		return nil, errors.New("order id and items are required")
	}
	if req.PickupLocation == "" {
		req.PickupLocation = c.pickupLocation
	}
	if req.OrderDate == "" {
		req.OrderDate = c.now().UTC().Format("2006-01-02 15:04")
	}
	req.ShippingIsBilling = true
	applyDefaultDimensions(&req)

	body, err := httpclient.JSONBody(req)
	if err != nil {
		return nil, fmt.Errorf("encode shipment: %w", err)
	}
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+token)

	var resp OrderResponse
	err = c.transport.DoJSON(ctx, httpclient.Request{
		Operation: "create_order",
		Method:    http.MethodPost,
		URL:       c.baseURL + "/orders/create/adhoc",
		Header:    header,
		Body:      body,
	}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			c.resetToken()
		}
		return nil, err
	}
	if resp.TrackingNumber() == "" {
		return nil, &httpclient.DecodeError{Err: errors.New("shipment response missing shipment id")}
	}
	return &resp, nil
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	body, err := httpclient.JSONBody(map[string]string{"email": c.email, "password": c.password})
	if err != nil {
		return "", err
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.transport.DoJSON(ctx, httpclient.Request{
		Operation: "login",
		Method:    http.MethodPost,
		URL:       c.baseURL + "/auth/login",
		Header:    header,
		Body:      body,
	}, &resp); err != nil {
		return "", fmt.Errorf("shipping login: %w", err)
	}
	if resp.Token == "" {
		return "", errors.New("shipping login returned no token")
	}
	c.token = resp.Token
	c.expiresAt = c.now().Add(tokenLifetime)
	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func applyDefaultDimensions(req *OrderRequest) {
	if req.Length <= 0 {
		req.Length = 10
	}
	if req.Breadth <= 0 {
		req.Breadth = 10
	}
	if req.Height <= 0 {
		req.Height = 10
	}
	if req.Weight <= 0 {
		req.Weight = 0.5
	}
}
