package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/couponlab/waitroom/internal/domain/queue"
)

type createQueueItemRequest struct {
	UserName   string `json:"user_name"`
	CouponName string `json:"coupon_name"`
	ListPrice  int64  `json:"list_price"`
	OrderID    string `json:"order_id"`
}

type createQueueItemResponse struct {
	FinalPrice    int64 `json:"final_price"`
	QueuePosition int64 `json:"queue_position"`
	ID            int64 `json:"id"`
	QueueLen      int64 `json:"queue_len"`
}

type queueItemResponse struct {
	QueuePosition int64     `json:"queue_position"`
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	VIP           int       `json:"vip"`
	UserName      string    `json:"user_name"`
	OrderID       string    `json:"order_id"`
	CouponName    *string   `json:"coupon_name"`
	FinalPrice    int64     `json:"final_price"`
}

type listQueueResponse struct {
	QueueItems []queueItemResponse `json:"queue_items"`
}

type shiftResponse struct {
	Shifted  int64 `json:"shifted"`
	QueueLen int64 `json:"queue_len"`
}

// CreateQueueItem handles POST /queue: place an order, optionally with a
// coupon, subject to admission control.
func (h *Handler) CreateQueueItem(w http.ResponseWriter, r *http.Request) {
	var req createQueueItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := h.queue.Enqueue(r.Context(), queue.EnqueueRequest{
		UserName:   req.UserName,
		CouponName: req.CouponName,
		ListPrice:  req.ListPrice,
		OrderRef:   req.OrderID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createQueueItemResponse{
		FinalPrice:    result.Item.FinalPrice.IntPart(),
		QueuePosition: result.Position,
		ID:            result.Item.ID,
		QueueLen:      result.QueueLen,
	})
}

// ListQueue handles GET /queue: all waiting items with computed positions.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := listQueueResponse{QueueItems: make([]queueItemResponse, len(items))}
	for i, item := range items {
		resp.QueueItems[i] = queueItemResponse{
			QueuePosition: item.Position,
			ID:            item.ID,
			CreatedAt:     item.CreatedAt,
			VIP:           item.VIP,
			UserName:      item.UserName,
			OrderID:       item.OrderRef,
			CouponName:    item.CouponName,
			FinalPrice:    item.FinalPrice.IntPart(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// QueueLen handles GET /queue/len.
func (h *Handler) QueueLen(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.Len(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ShiftQueue handles PUT /queue/shift/{count}: remove the front count items.
func (h *Handler) ShiftQueue(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.ParseInt(chi.URLParam(r, "count"), 10, 64)
	if err != nil {
		badRequest(w, "count must be an integer")
		return
	}

	result, err := h.queue.Shift(r.Context(), count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shiftResponse{Shifted: result.Shifted, QueueLen: result.QueueLen})
}
