package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/checkout"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

func (h *handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *handlers) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Cart.ListItems(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *handlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Cart.AddItem(r.Context(), userID(r), req.ProductID, req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}

func (h *handlers) setCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Cart.SetQuantity(r.Context(), userID(r), chi.URLParam(r, "productID"), req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}

func (h *handlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.RemoveItem(r.Context(), userID(r), chi.URLParam(r, "productID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}

func (h *handlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), userID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listSlots never shows days before today, whatever from says.
func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	from := delivery.Day(h.now())
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.Parse(delivery.DateLayout, v)
		if err != nil {
			h.writeError(w, r, apperr.Validation("from", "from must be YYYY-MM-DD"))
			return
		}
		if d.After(from) {
			from = d
		}
	}
	slots, err := h.Slots.ListAvailableSlots(r.Context(), from)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

type couponQuote struct {
	Code           string `json:"code"`
	Subtotal       int64  `json:"subtotal"`
	DiscountAmount int64  `json:"discount_amount"`
}

// validateCoupon checks a code against the caller's current cart without
// consuming it.
func (h *handlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.Cart.ListItems(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.Coupons.Validate(r.Context(), req.Code, v.Subtotal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, couponQuote{Code: q.Coupon.Code, Subtotal: q.Subtotal, DiscountAmount: q.DiscountAmount})
}

func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.UserID = userID(r)
	req.TraceID = middleware.GetReqID(r.Context())
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	}

	res, err := h.Checkout.Checkout(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *handlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.Orders.List(r.Context(), orders.Filter{UserID: userID(r), Limit: limit, Offset: offset})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ownOrder loads the order only if it belongs to the caller; someone else's
// order is reported as missing.
func (h *handlers) ownOrder(r *http.Request) (orders.Order, error) {
	id := chi.URLParam(r, "id")
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		return orders.Order{}, err
	}
	if o.UserID != userID(r) {
		return orders.Order{}, orders.ErrOrderNotFound(id)
	}
	return o, nil
}

func (h *handlers) getMyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownOrder(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) myOrderHistory(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownOrder(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.Orders.History(r.Context(), o.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// myOrderStatus answers from the projection cache when it has the order,
// and from the ledger otherwise.
func (h *handlers) myOrderStatus(w http.ResponseWriter, r *http.Request) {
	if h.Status != nil {
		snap, ok, err := h.Status.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.Log.WithError(err).Warn("status cache read failed")
		}
		if ok && snap.UserID == userID(r) {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	o, err := h.ownOrder(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}
