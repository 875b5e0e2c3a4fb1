package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"digistore-be/internal/download"
	"digistore-be/internal/logger"
	"digistore-be/internal/order"
	"digistore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type OrdersHandler struct {
	Service order.Service
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/download/{orderId}/{itemId}", h.downloadURL)
	r.Patch("/{orderId}/status", h.updateStatus)
}

func writeError(w http.ResponseWriter, message string, code int) {
	utils.WriteJSONError(w, message, code)
}

// errorStatus maps domain errors to a status and a client-safe message.
var errorStatus = []struct {
	err  error
	code int
}{
	{order.ErrNoItems, http.StatusBadRequest},
	{order.ErrMissingProduct, http.StatusBadRequest},
	{order.ErrInvalidQuantity, http.StatusBadRequest},
	{order.ErrMissingTotal, http.StatusBadRequest},
	{order.ErrInvalidTotal, http.StatusBadRequest},
	{order.ErrProductNotFound, http.StatusBadRequest},
	{order.ErrInvalidStatus, http.StatusBadRequest},
	{order.ErrInvalidTransition, http.StatusBadRequest},
	{order.ErrUnauthorized, http.StatusUnauthorized},
	{order.ErrForbidden, http.StatusForbidden},
	{order.ErrOrderNotFound, http.StatusNotFound},
	{download.ErrOrderNotFound, http.StatusNotFound},
	{download.ErrOrderItemNotFound, http.StatusNotFound},
	{download.ErrLinkNotFound, http.StatusNotFound},
	{download.ErrLinkExpired, http.StatusForbidden},
}

func (h *OrdersHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.err.Error(), e.code)
			return
		}
	}

	logger.FromCtx(r.Context()).Error("request failed",
		zap.String("layer", "handler"),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, "Server error", http.StatusInternalServerError)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var input order.CreateOrderInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.Service.CreateOrder(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.Envelope{
		"success": true,
		"order":   order.ToResponse(o),
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Service.GetOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.Envelope{
		"success": true,
		"count":   len(orders),
		"orders":  order.ToResponses(orders),
	})
}

func (h *OrdersHandler) downloadURL(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, download.ErrOrderNotFound.Error(), http.StatusNotFound)
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		writeError(w, download.ErrOrderItemNotFound.Error(), http.StatusNotFound)
		return
	}

	url, err := h.Service.GetDownloadURL(r.Context(), orderID, itemID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.Envelope{
		"success":     true,
		"downloadUrl": url,
	})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var input order.UpdateStatusInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.Service.UpdateOrderStatus(r.Context(), orderID, input.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.Envelope{
		"success": true,
		"order":   order.ToResponse(o),
	})
}
