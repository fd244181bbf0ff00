package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/db"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/metrics"
	"github.com/angelmondragon/estore-backend/pkg/money"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
	"github.com/angelmondragon/estore-backend/pkg/outbox/payloads"
)

// Observation sources.
const (
	SourcePhonePeWebhook  = "phonepe_webhook"
	SourceCashfreeWebhook = "cashfree_webhook"
	SourceVerify          = "verify"
	SourceMobileCallback  = "mobile_callback"
	SourceReconcile       = "reconcile"
)

// Notification templates sent on terminal payment outcomes.
const (
	TemplatePaymentSuccess = "payment_success"
	TemplatePaymentFailed  = "payment_failed"
)

// Service owns every write to Payment.status and the Order.payment_status mirror.
type Service interface {
	CreatePayment(ctx context.Context, userID uuid.UUID, input CreatePaymentInput) (*models.Payment, error)
	ApplyObservation(ctx context.Context, obs Observation) (*ApplyResult, error)
	VerifyPayment(ctx context.Context, transactionID string) (*CheckResult, error)
	HandlePhonePeWebhook(ctx context.Context, authorization string, body []byte) (*WebhookResult, error)
	HandleCashfreeWebhook(ctx context.Context, headers WebhookHeaders, body []byte) (*WebhookResult, error)
	MobileCallback(ctx context.Context, input MobileCallbackInput) (*CallbackResult, error)
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileSummary, error)
}

// CreatePaymentInput is a checkout payment request for an existing order.
type CreatePaymentInput struct {
	OrderID    uuid.UUID
	StoreID    uuid.UUID
	Amount     decimal.Decimal
	Gateway    *enums.PaymentGateway
	Method     enums.PaymentMethod
	Platform   enums.PaymentPlatform
	DeviceInfo json.RawMessage
	Customer   Customer
}

// Observation is one report of a payment's status from any source.
type Observation struct {
	TransactionID string
	Status        enums.PaymentStatus
	GatewayStatus string
	ObservedAt    time.Time
	Source        string
}

// Outcome describes what ApplyObservation did with an observation.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
)

type ApplyResult struct {
	Payment  *models.Payment
	Previous enums.PaymentStatus
	Outcome  Outcome
}

type paymentCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	PaymentCacheKey(transactionID string) string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Cache       paymentCache
	ReplayGuard *ReplayGuard
	Gateways    []Gateway
	Metrics     *metrics.PaymentMetrics
	Logger      *logger.Logger
	Payments    config.PaymentsConfig
	PhonePe     config.PhonePeConfig
	Cashfree    config.CashfreeConfig
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	cache    paymentCache
	replay   *ReplayGuard
	gateways map[enums.PaymentGateway]Gateway
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	cfg      config.PaymentsConfig
	phonePe  config.PhonePeConfig
	cashfree config.CashfreeConfig
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("payment cache required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	gateways := make(map[enums.PaymentGateway]Gateway, len(params.Gateways))
	for _, gw := range params.Gateways {
		if gw == nil {
			continue
		}
		gateways[gw.Name()] = gw
	}
	if len(gateways) == 0 {
		return nil, fmt.Errorf("at least one payment gateway required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		cache:    params.Cache,
		replay:   params.ReplayGuard,
		gateways: gateways,
		metrics:  params.Metrics,
		logg:     params.Logger,
		cfg:      params.Payments,
		phonePe:  params.PhonePe,
		cashfree: params.Cashfree,
		now:      time.Now,
	}, nil
}

func (s *service) CreatePayment(ctx context.Context, userID uuid.UUID, input CreatePaymentInput) (*models.Payment, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil || input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id and estore_id are required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Method == "" {
		input.Method = enums.PaymentMethodPG
	}
	if input.Platform == "" {
		input.Platform = enums.PaymentPlatformWeb
	}
	if !input.Method.IsValid() || !input.Platform.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method or platform")
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, notFound(err, "order not found")
	}
	if err := checkPayable(order, userID, input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payment := &models.Payment{
		ID:               uuid.New(),
		OrderID:          order.ID,
		StoreID:          order.StoreID,
		PaymentMethod:    input.Method,
		Amount:           money.Round(input.Amount),
		Status:           enums.PaymentStatusPending,
		Platform:         input.Platform,
		DeviceInfo:       input.DeviceInfo,
		StatusObservedAt: now,
		CreatedAt:        now,
	}

	if input.Method == enums.PaymentMethodCOD {
		payment.TransactionID = newTransactionID("cod")
	} else {
		gw, err := s.gatewayFor(input.Gateway)
		if err != nil {
			return nil, err
		}
		if gw.Name() == enums.PaymentGatewayCashfree && strings.TrimSpace(input.Customer.Phone) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer phone is required for cashfree payments")
		}
		txnID := newTransactionID(transactionPrefix(gw.Name()))
		result, err := gw.CreatePayment(ctx, CreateRequest{
			TransactionID: txnID,
			Amount:        payment.Amount,
			RedirectURL:   s.redirectURL(input.Platform, txnID),
			Purpose:       "Order " + order.OrderNumber,
			Customer:      input.Customer,
		})
		if err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "gateway": gw.Name().String()})
			s.logg.Error(logCtx, "payment gateway create failed", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
		}
		name := gw.Name()
		payment.TransactionID = result.TransactionID
		payment.PaymentGateway = &name
		payment.PaymentURL = stringPtr(result.PaymentURL)
		payment.GatewayStatus = stringPtr(result.GatewayStatus)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindOrderForUpdate(ctx, order.ID)
		if err != nil {
			return notFound(err, "order not found")
		}
		if locked.PaymentStatus == enums.PaymentStatusCompleted || locked.PaymentStatus == enums.PaymentStatusRefunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction id already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
		}
		if err := repo.UpdateOrderPaymentStatus(ctx, order.ID, payment.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mirror order payment status")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCreated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: userID, StoreID: &payment.StoreID},
			Data: payloads.PaymentCreatedEvent{
				PaymentID:     payment.ID,
				OrderID:       payment.OrderID,
				StoreID:       payment.StoreID,
				TransactionID: payment.TransactionID,
				Gateway:       payment.PaymentGateway,
				Method:        payment.PaymentMethod,
				Platform:      payment.Platform,
				Amount:        payment.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithTransactionID(ctx, payment.TransactionID)
	logCtx = s.logg.WithOrderID(logCtx, payment.OrderID.String())
	s.logg.Info(logCtx, "payment created")
	return payment, nil
}

func checkPayable(order *models.Order, userID uuid.UUID, input CreatePaymentInput) error {
	if order.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if order.StoreID != input.StoreID {
		return pkgerrors.New(pkgerrors.CodeValidation, "order does not belong to estore")
	}
	if !money.Round(input.Amount).Equal(money.Round(order.TotalAmount)) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "amount must equal order total %s", money.String(order.TotalAmount))
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted || order.PaymentStatus == enums.PaymentStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	return nil
}

func (s *service) gatewayFor(requested *enums.PaymentGateway) (Gateway, error) {
	name := enums.PaymentGateway(strings.ToLower(s.cfg.DefaultGateway))
	if requested != nil && *requested != "" {
		name = *requested
	}
	gw, ok := s.gateways[name]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payment gateway %q is not available", name)
	}
	return gw, nil
}

func (s *service) redirectURL(platform enums.PaymentPlatform, transactionID string) string {
	base := s.cfg.WebRedirectURL
	if platform == enums.PaymentPlatformMobile {
		base = s.cfg.MobileRedirectURL
	}
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base
	}
	q := u.Query()
	q.Set("transaction_id", transactionID)
	u.RawQuery = q.Encode()
	return u.String()
}

func transactionPrefix(gateway enums.PaymentGateway) string {
	switch gateway {
	case enums.PaymentGatewayPhonePe:
		return "pp"
	case enums.PaymentGatewayCashfree:
		return "cf"
	default:
		return "pg"
	}
}

// newTransactionID returns prefix_<32 hex>, valid for both gateways' id charsets.
func newTransactionID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ApplyObservation is the single write path for Payment.status. Stale and
// repeated observations are no-ops; illegal transitions are rejected.
func (s *service) ApplyObservation(ctx context.Context, obs Observation) (*ApplyResult, error) {
	obs.TransactionID = strings.TrimSpace(obs.TransactionID)
	if obs.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction_id is required")
	}
	if !obs.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = s.now()
	}
	obs.ObservedAt = obs.ObservedAt.UTC()
	logCtx := s.logg.WithTransactionID(ctx, obs.TransactionID)
	logCtx = s.logg.WithField(logCtx, "source", obs.Source)

	var result ApplyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByTransactionIDForUpdate(ctx, obs.TransactionID)
		if err != nil {
			return notFound(err, "payment not found")
		}
		result.Payment = payment
		result.Previous = payment.Status

		// Gateway clocks may trail ours; nothing observed about a payment
		// predates its creation.
		if obs.ObservedAt.Before(payment.CreatedAt) {
			obs.ObservedAt = payment.CreatedAt.UTC()
		}
		if obs.ObservedAt.Before(payment.StatusObservedAt) {
			result.Outcome = OutcomeStale
			return nil
		}
		if payment.Status == obs.Status {
			result.Outcome = OutcomeUnchanged
			return nil
		}
		if !payment.Status.CanTransitionTo(obs.Status) {
			s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
				"from": payment.Status.String(),
				"to":   obs.Status.String(),
			}), "illegal payment transition rejected")
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("payment cannot move from %s to %s", payment.Status, obs.Status))
		}

		updates := map[string]any{
			"status":             obs.Status,
			"status_observed_at": obs.ObservedAt,
		}
		if obs.GatewayStatus != "" {
			updates["gateway_status"] = obs.GatewayStatus
			payment.GatewayStatus = stringPtr(obs.GatewayStatus)
		}
		if err := repo.UpdatePayment(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
		}
		if err := repo.UpdateOrderPaymentStatus(ctx, payment.OrderID, obs.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mirror order payment status")
		}
		payment.Status = obs.Status
		payment.StatusObservedAt = obs.ObservedAt
		result.Outcome = OutcomeApplied

		order, err := repo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		return s.emitTransition(ctx, tx, order, payment, result.Previous, obs)
	})
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case OutcomeApplied:
		s.invalidate(ctx, obs.TransactionID)
		s.metrics.IncTransition(obs.Source, obs.Status.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"from": result.Previous.String(),
			"to":   obs.Status.String(),
		}), "payment status changed")
	case OutcomeStale:
		s.logg.Info(logCtx, "stale payment observation ignored")
	default:
		s.logg.Debug(logCtx, "payment status unchanged")
	}
	return &result, nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, previous enums.PaymentStatus, obs Observation) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		OccurredAt:    obs.ObservedAt,
		Data: payloads.PaymentStatusChangedEvent{
			PaymentID:      payment.ID,
			OrderID:        payment.OrderID,
			StoreID:        payment.StoreID,
			UserID:         order.UserID,
			TransactionID:  payment.TransactionID,
			Gateway:        payment.PaymentGateway,
			PreviousStatus: previous,
			Status:         payment.Status,
			Amount:         payment.Amount,
			Source:         obs.Source,
			ObservedAt:     obs.ObservedAt,
		},
	})
	if err != nil {
		return err
	}

	var template string
	switch payment.Status {
	case enums.PaymentStatusCompleted:
		template = TemplatePaymentSuccess
	case enums.PaymentStatusFailed:
		template = TemplatePaymentFailed
	default:
		return nil
	}
	orderID := order.ID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Version:       1,
		Data: payloads.NotificationRequestedEvent{
			TemplateName: template,
			Variables:    []string{order.OrderNumber, money.String(payment.Amount), payment.TransactionID},
			Recipient:    order.UserID.String(),
			OrderID:      &orderID,
		},
	})
}

func (s *service) invalidate(ctx context.Context, transactionID string) {
	if err := s.cache.Del(ctx, s.cache.PaymentCacheKey(transactionID)); err != nil {
		s.logg.Warn(s.logg.WithTransactionID(ctx, transactionID), "payment cache invalidation failed: "+err.Error())
	}
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
