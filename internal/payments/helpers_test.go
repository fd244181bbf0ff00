package payments

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
)

var fixedNow = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

type recordingEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) ofType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.DomainEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// memoryStore backs both the payment cache and the replay guard.
type memoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	deletes []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = "1"
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		m.deletes = append(m.deletes, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "estore:idempotency:" + scope + ":" + id
}

func (m *memoryStore) PaymentCacheKey(transactionID string) string {
	return "estore:payment:" + transactionID
}

// stubGateway answers status checks from a queue; the last answer repeats.
type stubGateway struct {
	name      enums.PaymentGateway
	createErr error
	statuses  []StatusResult
	creates   []CreateRequest
	checks    int
}

func (g *stubGateway) Name() enums.PaymentGateway { return g.name }

func (g *stubGateway) CreatePayment(_ context.Context, req CreateRequest) (*CreateResult, error) {
	g.creates = append(g.creates, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &CreateResult{
		TransactionID: req.TransactionID,
		PaymentURL:    "https://pay.example.test/" + req.TransactionID,
		GatewayStatus: "PENDING",
	}, nil
}

func (g *stubGateway) CheckStatus(context.Context, string) StatusResult {
	g.checks++
	if len(g.statuses) == 0 {
		return StatusResult{Status: enums.PaymentStatusPending, RawStatus: "PENDING", Known: true}
	}
	next := g.statuses[0]
	if len(g.statuses) > 1 {
		g.statuses = g.statuses[1:]
	}
	return next
}

type fixture struct {
	svc      *service
	conn     *gorm.DB
	events   *recordingEmitter
	store    *memoryStore
	phonePe  *stubGateway
	cashfree *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	store := newMemoryStore()
	guard, err := NewReplayGuard(store, time.Hour)
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		events:   &recordingEmitter{},
		store:    store,
		phonePe:  &stubGateway{name: enums.PaymentGatewayPhonePe},
		cashfree: &stubGateway{name: enums.PaymentGatewayCashfree},
	}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Tx:          dbtest.TxRunner{DB: conn},
		Outbox:      f.events,
		Cache:       store,
		ReplayGuard: guard,
		Gateways:    []Gateway{f.phonePe, f.cashfree},
		Logger:      logger.New(logger.Options{Output: io.Discard}),
		Payments: config.PaymentsConfig{
			DefaultGateway:     "phonepe",
			WebRedirectURL:     "https://shop.example.test/payment/status",
			MobileRedirectURL:  "estore://payment/status",
			CacheTTL:           time.Minute,
			StaleAfter:         15 * time.Minute,
			ReconcileBatchSize: 10,
		},
		PhonePe: config.PhonePeConfig{
			WebhookUsername: "hook",
			WebhookPassword: "secret",
		},
		Cashfree: config.CashfreeConfig{SecretKey: "cf-secret"},
	})
	require.NoError(t, err)
	f.svc = svc.(*service)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) order(t *testing.T, user uuid.UUID, total string) models.Order {
	t.Helper()
	amount := decimal.RequireFromString(total)
	order := models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20260315-" + uuid.NewString()[:8],
		UserID:        user,
		StoreID:       uuid.New(),
		ItemsTotal:    amount,
		TotalAmount:   amount,
		PaymentStatus: enums.PaymentStatusPending,
	}
	require.NoError(t, f.conn.Omit("Items").Create(&order).Error)
	return order
}

func (f *fixture) payment(t *testing.T, order models.Order, gateway enums.PaymentGateway, status enums.PaymentStatus, observedAt time.Time) models.Payment {
	t.Helper()
	gw := gateway
	payment := models.Payment{
		ID:               uuid.New(),
		OrderID:          order.ID,
		StoreID:          order.StoreID,
		PaymentMethod:    enums.PaymentMethodPG,
		Amount:           order.TotalAmount,
		Status:           status,
		TransactionID:    transactionPrefix(gateway) + "_" + uuid.NewString()[:12],
		PaymentGateway:   &gw,
		Platform:         enums.PaymentPlatformWeb,
		StatusObservedAt: observedAt,
		CreatedAt:        observedAt,
	}
	require.NoError(t, f.conn.Create(&payment).Error)
	return payment
}

func (f *fixture) reload(t *testing.T, transactionID string) (models.Payment, models.Order) {
	t.Helper()
	var payment models.Payment
	require.NoError(t, f.conn.Where("transaction_id = ?", transactionID).First(&payment).Error)
	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", payment.OrderID).First(&order).Error)
	return payment, order
}
