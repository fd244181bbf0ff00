package payments

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/cashfree"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
	"github.com/angelmondragon/estore-backend/pkg/phonepe"
)

// Soft error tags returned by status checks instead of errors.
const (
	ErrTypeEmptyResponse   = "API_EMPTY_RESPONSE"
	ErrTypeConnection      = "API_CONNECTION_ERROR"
	ErrTypeHTTP            = "API_HTTP_ERROR"
	ErrTypeNotFound        = "API_NOT_FOUND"
	ErrTypeInvalidResponse = "API_INVALID_RESPONSE"
	ErrTypeUnknown         = "UNKNOWN_ERROR"
)

// SoftError means the gateway gave no usable answer. Callers keep the persisted
// status when they see one.
type SoftError struct {
	Type    string `json:"error_type"`
	Message string `json:"message"`
}

func (e *SoftError) Error() string {
	return e.Type + ": " + e.Message
}

// Gateway abstracts one external payment processor.
type Gateway interface {
	Name() enums.PaymentGateway
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	CheckStatus(ctx context.Context, transactionID string) StatusResult
}

// CreateRequest starts a payment. TransactionID is generated by the caller and
// becomes the gateway correlation id.
type CreateRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	RedirectURL   string
	Purpose       string
	Customer      Customer
}

type Customer struct {
	Phone string
	Email string
	Name  string
}

type CreateResult struct {
	TransactionID string
	PaymentURL    string
	GatewayStatus string
}

// StatusResult carries either a normalized status or a SoftError, never both.
type StatusResult struct {
	Status    enums.PaymentStatus
	RawStatus string
	Known     bool
	SoftError *SoftError
}

func softStatus(err error) StatusResult {
	return StatusResult{SoftError: classify(err)}
}

// classify turns a transport or decoding failure into a tagged soft error.
func classify(err error) *SoftError {
	var (
		statusErr *httpclient.StatusError
		decodeErr *httpclient.DecodeError
		netErr    net.Error
		urlErr    *url.Error
	)
	switch {
	case errors.Is(err, httpclient.ErrEmptyBody):
		return &SoftError{Type: ErrTypeEmptyResponse, Message: "gateway returned an empty response"}
	case errors.As(err, &decodeErr):
		return &SoftError{Type: ErrTypeInvalidResponse, Message: "gateway response could not be parsed"}
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return &SoftError{Type: ErrTypeNotFound, Message: "payment not found at gateway"}
	case errors.As(err, &statusErr):
		return &SoftError{Type: ErrTypeHTTP, Message: http.StatusText(statusErr.StatusCode)}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr), errors.As(err, &urlErr):
		return &SoftError{Type: ErrTypeConnection, Message: "gateway unreachable"}
	default:
		return &SoftError{Type: ErrTypeUnknown, Message: "unexpected gateway error"}
	}
}

type phonePeAPI interface {
	Pay(ctx context.Context, req phonepe.PayRequest) (*phonepe.PayResponse, error)
	OrderStatus(ctx context.Context, merchantOrderID string) (*phonepe.OrderStatus, error)
}

// PhonePeGateway uses our transaction id as the PhonePe merchantOrderId.
type PhonePeGateway struct {
	api phonePeAPI
}

func NewPhonePeGateway(api phonePeAPI) *PhonePeGateway {
	return &PhonePeGateway{api: api}
}

func (g *PhonePeGateway) Name() enums.PaymentGateway {
	return enums.PaymentGatewayPhonePe
}

func (g *PhonePeGateway) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	resp, err := g.api.Pay(ctx, phonepe.PayRequest{
		MerchantOrderID: req.TransactionID,
		AmountPaise:     req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		RedirectURL:     req.RedirectURL,
		Message:         req.Purpose,
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{
		TransactionID: req.TransactionID,
		PaymentURL:    resp.RedirectURL,
		GatewayStatus: resp.State,
	}, nil
}

func (g *PhonePeGateway) CheckStatus(ctx context.Context, transactionID string) StatusResult {
	resp, err := g.api.OrderStatus(ctx, transactionID)
	if err != nil {
		return softStatus(err)
	}
	if resp.State == "" {
		return StatusResult{SoftError: &SoftError{Type: ErrTypeInvalidResponse, Message: "gateway response has no state"}}
	}
	status, known := NormalizePhonePe(resp.State)
	return StatusResult{Status: status, RawStatus: resp.State, Known: known}
}

type cashfreeAPI interface {
	CreateLink(ctx context.Context, req cashfree.CreateLinkRequest) (*cashfree.Link, error)
	GetLink(ctx context.Context, linkID string) (*cashfree.Link, error)
}

// CashfreeGateway uses payment links; the link id is our transaction id.
type CashfreeGateway struct {
	api cashfreeAPI
}

func NewCashfreeGateway(api cashfreeAPI) *CashfreeGateway {
	return &CashfreeGateway{api: api}
}

func (g *CashfreeGateway) Name() enums.PaymentGateway {
	return enums.PaymentGatewayCashfree
}

func (g *CashfreeGateway) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	link, err := g.api.CreateLink(ctx, cashfree.CreateLinkRequest{
		LinkID:    req.TransactionID,
		Amount:    req.Amount,
		Purpose:   req.Purpose,
		ReturnURL: req.RedirectURL,
		Customer: cashfree.Customer{
			Phone: req.Customer.Phone,
			Email: req.Customer.Email,
			Name:  req.Customer.Name,
		},
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{
		TransactionID: req.TransactionID,
		PaymentURL:    link.LinkURL,
		GatewayStatus: link.LinkStatus,
	}, nil
}

func (g *CashfreeGateway) CheckStatus(ctx context.Context, transactionID string) StatusResult {
	link, err := g.api.GetLink(ctx, transactionID)
	if err != nil {
		return softStatus(err)
	}
	if link.LinkStatus == "" {
		return StatusResult{SoftError: &SoftError{Type: ErrTypeInvalidResponse, Message: "gateway response has no link status"}}
	}
	status, known := NormalizeCashfreeLink(link.LinkStatus)
	return StatusResult{Status: status, RawStatus: link.LinkStatus, Known: known}
}
