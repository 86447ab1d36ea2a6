package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeCapacityExceeded, apperr.CodeCartChanged,
		apperr.CodeConcurrencyConflict, apperr.CodeInvalidTransition:
		return http.StatusConflict
	case apperr.CodeEmptyCart, apperr.CodeProductUnavailable,
		apperr.CodeSlotUnavailable, apperr.CodeCouponInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders typed failures as {code,message,field}. Anything else
// is an infrastructure failure: it is logged and the client sees a generic
// message.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		h.Log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
		return
	}
	status := statusFor(e.Code)
	msg := e.Message
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Code: e.Code, Message: msg, Field: e.Field})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("body", "invalid json")
	}
	return nil
}

func requireHeader(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get(name)) == "" {
				writeJSON(w, http.StatusBadRequest, errorBody{
					Code:    apperr.CodeValidation,
					Message: name + " header is required",
					Field:   name,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userID(r *http.Request) string { return strings.TrimSpace(r.Header.Get(HeaderUserID)) }
func actorID(r *http.Request) string { return strings.TrimSpace(r.Header.Get(HeaderActorID)) }

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, apperr.Validation("limit", "limit must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, apperr.Validation("offset", "offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
