package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/services"
	"StarsAutoFill/internal/store"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Orders *services.OrderService
}

type createOrderRequest struct {
	OrderID          string `json:"orderId"`
	StarsAmount      int64  `json:"starsAmount"`
	BuyerHandle      string `json:"buyerHandle"`
	ChatID           int64  `json:"chatId"`
	TelegramUsername string `json:"telegramUsername"`
}

type setUsernameRequest struct {
	TelegramUsername string `json:"telegramUsername"`
}

type orderResponse struct {
	OrderID          string `json:"orderId"`
	StarsAmount      int64  `json:"starsAmount"`
	BuyerHandle      string `json:"buyerHandle,omitempty"`
	ChatID           int64  `json:"chatId,omitempty"`
	TelegramUsername string `json:"telegramUsername,omitempty"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
	RetriesLeft      int    `json:"retriesLeft"`
	TonTransactionID string `json:"tonTransactionId,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

func NewHandler(orders *services.OrderService) *Handler {
	return &Handler{Orders: orders}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.Ingest(r.Context(), services.IngestRequest{
		OrderID:          req.OrderID,
		StarsAmount:      req.StarsAmount,
		BuyerHandle:      req.BuyerHandle,
		ChatID:           req.ChatID,
		TelegramUsername: req.TelegramUsername,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingOrderID):
			writeError(w, http.StatusBadRequest, "missing order id")
		case errors.Is(err, services.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "stars amount must be positive")
		default:
			writeError(w, http.StatusInternalServerError, "create order failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.Orders.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get order failed")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) SetUsername(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req setUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.SetUsername(r.Context(), orderID, req.TelegramUsername)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrInvalidUsername):
			writeError(w, http.StatusBadRequest, "invalid telegram username")
		case errors.Is(err, services.ErrNotCorrectable):
			writeError(w, http.StatusConflict, "order is not waiting for a username")
		default:
			writeError(w, http.StatusInternalServerError, "set username failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.Orders.Refund(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrNotRefundable):
			writeError(w, http.StatusConflict, "order is not refundable")
		default:
			writeError(w, http.StatusInternalServerError, "refund failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:          order.OrderID,
		StarsAmount:      order.StarsAmount,
		BuyerHandle:      order.BuyerHandle,
		ChatID:           order.ChatID,
		TelegramUsername: order.TelegramUsername,
		Status:           string(order.Status),
		RetriesLeft:      order.RetriesLeft,
	}
	if order.Error != nil {
		resp.Error = string(*order.Error)
	}
	if order.TonTransactionID != nil {
		resp.TonTransactionID = *order.TonTransactionID
	}
	if !order.CreatedAt.IsZero() {
		resp.CreatedAt = order.CreatedAt.Format(time.RFC3339)
	}
	if !order.UpdatedAt.IsZero() {
		resp.UpdatedAt = order.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
