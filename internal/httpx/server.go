package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-checkout-engine/internal/cart"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine/internal/checkout"
	"github.com/ariefcatur/go-checkout-engine/internal/coupons"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderActorID        = "X-Actor-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// StatusReader serves order status from the projection cache.
type StatusReader interface {
	Get(ctx context.Context, orderID string) (orders.StatusSnapshot, bool, error)
}

type Deps struct {
	Catalog  *catalog.Service
	Cart     *cart.Service
	Slots    *delivery.Manager
	Coupons  *coupons.Ledger
	Orders   *orders.Ledger
	Checkout *checkout.Orchestrator
	Status   StatusReader // optional

	// Health reports readiness of the backing stores; nil means always ready.
	Health  func(ctx context.Context) error
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Timeout time.Duration
	Now     func() time.Time
}

func NewRouter(d Deps) *chi.Mux {
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(requestLogger(d.Log, d.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(d.Timeout))

	r.Get("/healthz", h.healthz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(requireHeader(HeaderUserID))

		r.Get("/products", h.listProducts)

		r.Get("/cart", h.getCart)
		r.Delete("/cart", h.clearCart)
		r.Post("/cart/items", h.addCartItem)
		r.Put("/cart/items/{productID}", h.setCartItem)
		r.Delete("/cart/items/{productID}", h.removeCartItem)

		r.Get("/delivery-slots", h.listSlots)
		r.Post("/coupons/validate", h.validateCoupon)
		r.Post("/checkout", h.checkout)

		r.Get("/orders", h.listMyOrders)
		r.Get("/orders/{id}", h.getMyOrder)
		r.Get("/orders/{id}/history", h.myOrderHistory)
		r.Get("/orders/{id}/status", h.myOrderStatus)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireHeader(HeaderActorID))

		r.Post("/products", h.createProduct)
		r.Patch("/products/{id}", h.patchProduct)

		r.Post("/delivery-slots", h.createSlot)
		r.Patch("/delivery-slots/{id}", h.patchSlot)
		r.Post("/delivery-slots/reconcile", h.reconcileSlots)

		r.Get("/coupons", h.listCoupons)
		r.Post("/coupons", h.createCoupon)
		r.Patch("/coupons/{code}", h.patchCoupon)

		r.Get("/orders", h.listOrders)
		r.Post("/orders/{id}/status", h.transitionOrder)
		r.Post("/orders/{id}/payment-status", h.setPaymentStatus)
		r.Put("/orders/{id}/tracking", h.setTracking)
		r.Post("/orders/{id}/notes", h.addOrderNote)
	})
	return r
}

type handlers struct {
	Deps
}

func (h *handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			h.Log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs one line per request and records it under the matched
// route pattern, so path parameters do not explode metric cardinality.
func requestLogger(log logrus.FieldLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			if m != nil {
				m.ObserveRequest(r.Method+" "+route, status, took)
			}
			entry := log.WithFields(logrus.Fields{
				"method":     r.Method,
				"route":      route,
				"status":     status,
				"took_ms":    took.Milliseconds(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Debug("request")
		})
	}
}
