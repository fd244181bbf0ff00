package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/estore-backend/api/controllers"
	"github.com/angelmondragon/estore-backend/api/controllers/deadletters"
	discountcontrollers "github.com/angelmondragon/estore-backend/api/controllers/discounts"
	ordercontrollers "github.com/angelmondragon/estore-backend/api/controllers/orders"
	packagecontrollers "github.com/angelmondragon/estore-backend/api/controllers/packages"
	paymentcontrollers "github.com/angelmondragon/estore-backend/api/controllers/payments"
	"github.com/angelmondragon/estore-backend/api/middleware"
	"github.com/angelmondragon/estore-backend/internal/delivery"
	"github.com/angelmondragon/estore-backend/internal/discounts"
	"github.com/angelmondragon/estore-backend/internal/orders"
	"github.com/angelmondragon/estore-backend/internal/payments"
	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Nil stores disable the
// middleware that depends on them.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Metrics     *prometheus.Registry
	Idempotency redis.IdempotencyStore
	RateLimiter middleware.RateLimiterStore
	Readiness   map[string]controllers.Pinger
	Discounts   discounts.Service
	Orders      orders.Service
	Delivery    delivery.Service
	Payments    payments.Service
	DeadLetters deadletters.Store
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	couponPolicy := middleware.NewRateLimitPolicy("coupon", cfg.RateLimit.CouponWindow, cfg.RateLimit.CouponLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", controllers.Metrics(deps.Metrics))
	}

	r.With(
		middleware.OptionalAuth(cfg.JWT, logg),
		middleware.RateLimit(couponPolicy, deps.RateLimiter, logg),
	).Get("/validate-coupon/{code}", discountcontrollers.ValidateCoupon(deps.Discounts, logg))
	r.Post("/validate-offer/{offer_id}", discountcontrollers.ValidateOffer(deps.Discounts, logg))

	r.With(
		middleware.Auth(cfg.JWT, logg),
		middleware.Idempotency(deps.Idempotency, logg),
	).Post("/payments/", paymentcontrollers.CreatePayment(deps.Payments, logg))
	r.Post("/phonepe-webhook/", paymentcontrollers.PhonePeWebhook(deps.Payments, logg))
	r.Post("/cashfree-webhook/", paymentcontrollers.CashfreeWebhook(deps.Payments, logg))
	r.Get("/verify-payment", paymentcontrollers.VerifyPayment(deps.Payments, logg))
	r.Post("/payment-callback/mobile/", paymentcontrollers.MobileCallback(deps.Payments, logg))

	// Registered flat so the idempotency middleware sees full route patterns.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Post("/api/v1/orders", ordercontrollers.PlaceOrder(deps.Orders, logg))
		r.Get("/api/v1/orders", ordercontrollers.List(deps.Orders, logg))
		r.Get("/api/v1/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleSeller, enums.UserRoleAdmin))
			r.Patch("/api/v1/orders/{orderId}/items/{itemId}", ordercontrollers.UpdateItem(deps.Orders, logg))
			r.Post("/api/v1/orders/{orderId}/packages", packagecontrollers.CreatePackage(deps.Delivery, deps.Orders, logg))
			r.Patch("/api/v1/packages/{packageId}/status", packagecontrollers.TransitionStatus(deps.Delivery, deps.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Put("/api/v1/admin/offers/{offerId}/products", discountcontrollers.ConfigureOfferProducts(deps.Discounts, logg))
			r.Get("/api/v1/admin/outbox/dead-letters", deadletters.List(deps.DeadLetters, logg))
			r.Post("/api/v1/admin/outbox/dead-letters/{eventId}/requeue", deadletters.Requeue(deps.DeadLetters, logg))
		})
	})

	return r
}
