package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine/internal/coupons"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

type newProductReq struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func (h *handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req newProductReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Create(r.Context(), catalog.Product{
		SKU:      req.SKU,
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		IsActive: req.IsActive == nil || *req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Log.WithField("product_id", p.ID).WithField("actor", actorID(r)).Info("product created")
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) patchProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price    *int64 `json:"price,omitempty"`
		IsActive *bool  `json:"is_active,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Price == nil && req.IsActive == nil {
		h.writeError(w, r, apperr.Validation("body", "nothing to update"))
		return
	}
	id := chi.URLParam(r, "id")
	var (
		p   catalog.Product
		err error
	)
	if req.Price != nil {
		if p, err = h.Catalog.ChangePrice(r.Context(), id, *req.Price); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.IsActive != nil {
		if p, err = h.Catalog.SetActive(r.Context(), id, *req.IsActive); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) createSlot(w http.ResponseWriter, r *http.Request) {
	var req delivery.NewSlot
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.Slots.CreateSlot(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

type availabilityReq struct {
	IsAvailable *bool `json:"is_available"`
	IsActive    *bool `json:"is_active"`
}

func (h *handlers) patchSlot(w http.ResponseWriter, r *http.Request) {
	var req availabilityReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IsAvailable == nil {
		h.writeError(w, r, apperr.Validation("is_available", "is_available is required"))
		return
	}
	s, err := h.Slots.SetAvailability(r.Context(), chi.URLParam(r, "id"), *req.IsAvailable)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) reconcileSlots(w http.ResponseWriter, r *http.Request) {
	fixes, err := h.Slots.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if fixes == nil {
		fixes = []delivery.Correction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrections": fixes})
}

func (h *handlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Coupons.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *handlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupons.NewCoupon
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.Coupons.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handlers) patchCoupon(w http.ResponseWriter, r *http.Request) {
	var req availabilityReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		h.writeError(w, r, apperr.Validation("is_active", "is_active is required"))
		return
	}
	c, err := h.Coupons.SetActive(r.Context(), chi.URLParam(r, "code"), *req.IsActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := orders.Filter{UserID: r.URL.Query().Get("user_id"), Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("status"); v != "" {
		st, ok := orders.ParseStatus(v)
		if !ok {
			h.writeError(w, r, apperr.Validation("status", "unknown status "+v))
			return
		}
		f.Status = &st
	}
	out, err := h.Orders.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Note   string `json:"note,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to, ok := orders.ParseStatus(req.Status)
	if !ok {
		h.writeError(w, r, apperr.Validation("status", "unknown status "+req.Status))
		return
	}
	o, err := h.Orders.TransitionStatus(r.Context(), chi.URLParam(r, "id"), to, actorID(r), req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to, ok := orders.ParsePaymentStatus(req.PaymentStatus)
	if !ok {
		h.writeError(w, r, apperr.Validation("payment_status", "unknown payment status "+req.PaymentStatus))
		return
	}
	o, err := h.Orders.SetPaymentStatus(r.Context(), chi.URLParam(r, "id"), to, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) setTracking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.Orders.SetTracking(r.Context(), chi.URLParam(r, "id"), req.TrackingNumber, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) addOrderNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	history, err := h.Orders.AddNote(r.Context(), chi.URLParam(r, "id"), req.Note, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, history)
}
