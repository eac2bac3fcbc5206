// Package handler exposes the coupon and queue services over HTTP. It is a
// thin adapter: request decoding, delegation, and error-to-status mapping.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/couponlab/waitroom/internal/domain/coupon"
	"github.com/couponlab/waitroom/internal/domain/queue"
	"github.com/couponlab/waitroom/internal/domain/user"
)

// Handler serves the waitroom HTTP API.
type Handler struct {
	coupons *coupon.Service
	queue   *queue.Service
}

// New constructs a Handler with the required services.
func New(coupons *coupon.Service, queueSvc *queue.Service) *Handler {
	return &Handler{
		coupons: coupons,
		queue:   queueSvc,
	}
}

// Routes builds the HTTP router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/coupon", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListCoupons)
		r.Get("/{coupon_name}", h.GetCoupon)
	})

	r.Route("/queue", func(r chi.Router) {
		r.Post("/", h.CreateQueueItem)
		r.Get("/", h.ListQueue)
		r.Get("/len", h.QueueLen)
		r.Put("/shift/{count}", h.ShiftQueue)
	})

	return r
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes. Not-found errors map
// to 404, user-correctable policy and input violations to 400, system
// faults to 500, and anything unrecognized to 503.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidArg  *coupon.InvalidArgumentError
		unknownRule *coupon.UnknownRuleError
	)

	switch {
	case errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})

	case errors.Is(err, coupon.ErrDuplicateName),
		errors.Is(err, coupon.ErrReserved),
		errors.Is(err, coupon.ErrUserLimitReached),
		errors.Is(err, coupon.ErrGlobalLimitReached),
		errors.Is(err, coupon.ErrConflictingRules),
		errors.Is(err, queue.ErrFull),
		errors.Is(err, queue.ErrNegativePrice),
		errors.As(err, &invalidArg):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})

	case errors.As(err, &unknownRule),
		errors.Is(err, coupon.ErrNameExhausted):
		zctx.From(r.Context()).Error("coupon system fault", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})

	default:
		zctx.From(r.Context()).Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Message: message})
}
