package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couponlab/waitroom/internal/domain/coupon"
)

// createCouponRequest mirrors the POST /coupon body. The cap fields are kept
// raw to tell an omitted field (per-user cap defaults to 1) apart from an
// explicit null (unlimited).
type createCouponRequest struct {
	CouponName         string          `json:"coupon_name"`
	Params             coupon.Params   `json:"params"`
	MaxUseCountPerUser json.RawMessage `json:"max_use_count_per_user"`
	MaxUseCountGlobal  json.RawMessage `json:"max_use_count_global"`
	UserName           *string         `json:"user_name"`
}

type createCouponResponse struct {
	CouponName string `json:"coupon_name"`
}

type couponResponse struct {
	CouponName         string        `json:"coupon_name"`
	Params             coupon.Params `json:"params"`
	MaxUseCountPerUser *int          `json:"max_use_count_per_user"`
	MaxUseCountGlobal  *int          `json:"max_use_count_global"`
	UserName           *string       `json:"user_name"`
}

type listCouponsResponse struct {
	Coupons []couponResponse `json:"coupons"`
}

// CreateCoupon handles POST /coupon.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	one := 1
	perUser, err := parseCap(req.MaxUseCountPerUser, &one)
	if err != nil {
		badRequest(w, "invalid max_use_count_per_user")
		return
	}
	global, err := parseCap(req.MaxUseCountGlobal, nil)
	if err != nil {
		badRequest(w, "invalid max_use_count_global")
		return
	}

	c, err := h.coupons.Create(r.Context(), coupon.CreateRequest{
		Name:           req.CouponName,
		Params:         req.Params,
		MaxUsesPerUser: perUser,
		MaxUsesGlobal:  global,
		UserName:       req.UserName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createCouponResponse{CouponName: c.Name})
}

// GetCoupon handles GET /coupon/{coupon_name}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "coupon_name")
	c, err := h.coupons.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(*c))
}

// ListCoupons handles GET /coupon.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := listCouponsResponse{Coupons: make([]couponResponse, len(coupons))}
	for i, c := range coupons {
		resp.Coupons[i] = toCouponResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toCouponResponse(c coupon.Coupon) couponResponse {
	params := c.Params
	if params == nil {
		params = coupon.Params{}
	}
	return couponResponse{
		CouponName:         c.Name,
		Params:             params,
		MaxUseCountPerUser: c.MaxUsesPerUser,
		MaxUseCountGlobal:  c.MaxUsesGlobal,
		UserName:           c.UserName,
	}
}

// parseCap interprets an optional integer cap field: absent uses def, null
// means unlimited (nil), a number is the cap itself.
func parseCap(raw json.RawMessage, def *int) (*int, error) {
	if raw == nil {
		return def, nil
	}
	if string(raw) == "null" {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
