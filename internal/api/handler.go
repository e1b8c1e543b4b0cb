package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ms-checkout/internal/auth"
	"ms-checkout/internal/errs"
	"ms-checkout/internal/fulfillment"
	"ms-checkout/internal/gateway"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/order"
	"ms-checkout/internal/payment/storage"
	"ms-checkout/internal/pricing"
	"ms-checkout/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 16

type TicketReader interface {
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
}

type AttemptLister interface {
	ListAttempts(ctx context.Context, orderID string) ([]*storage.Attempt, error)
}

type Handler struct {
	Pricing      *pricing.Engine
	Orchestrator *fulfillment.Orchestrator
	Ledger       *order.Ledger
	Tickets      TicketReader
	Attempts     AttemptLister
	Verifier     *gateway.WebhookVerifier
	Logger       *logger.Logger
}

// Routes mounts every caller-facing operation of the checkout core.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/api/v1/webhooks/stripe", h.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Post("/api/v1/checkout/price", h.PriceQuote)
		r.Post("/api/v1/checkout", h.CreateCheckout)
		r.Post("/api/v1/orders/{orderId}/confirm", h.ConfirmPayment)
		r.Post("/api/v1/orders/{orderId}/retry", h.RetryPayment)
		r.Get("/api/v1/orders/{orderId}", h.GetOrder)
		r.Get("/api/v1/orders/{orderId}/attempts", h.ListPaymentAttempts)
		r.Get("/api/v1/orders", h.ListOrders)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

// PriceQuote computes what a selection would cost right now. Nothing is
// persisted; an invalid discount code comes back inside the calculation.
func (h *Handler) PriceQuote(w http.ResponseWriter, r *http.Request) {
	var req models.PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errs.E(errs.Validation, "invalid request body"))
		return
	}

	calc, err := h.Pricing.Calculate(r.Context(), req.Selections, req.DiscountCode, req.Currency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("price calculated", calc))
}

// CreateCheckout opens a pending order and a payment intent for it.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	buyerID := auth.BuyerID(r.Context())

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errs.E(errs.Validation, "invalid request body"))
		return
	}
	if req.EventID == "" {
		h.writeError(w, errs.E(errs.Validation, "event_id is required"))
		return
	}

	resp, err := h.Orchestrator.StartCheckout(r.Context(), buyerID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("checkout created", resp))
}

// ConfirmPayment is the synchronous confirmation entry point.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	resp, err := h.Orchestrator.ConfirmPayment(r.Context(), ord.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("payment confirmed", resp))
}

// RetryPayment lets the buyer supply a new payment method after a decline.
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	var req models.RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errs.E(errs.Validation, "invalid request body"))
		return
	}

	resp, err := h.Orchestrator.RetryPayment(r.Context(), ord.OrderID, req.PaymentMethodID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("payment retried", resp))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	tickets, err := h.Tickets.GetTicketsByOrder(r.Context(), ord.OrderID)
	if err != nil {
		h.writeError(w, errs.Wrap(errs.Internal, "failed to load tickets", err))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("order", models.OrderWithTickets{Order: *ord, Tickets: tickets}))
}

// ListPaymentAttempts exposes the gateway attempt audit trail for an order.
func (h *Handler) ListPaymentAttempts(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	attempts, err := h.Attempts.ListAttempts(r.Context(), ord.OrderID)
	if err != nil {
		h.writeError(w, errs.Wrap(errs.Internal, "failed to load payment attempts", err))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("payment attempts", attempts))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := auth.BuyerID(r.Context())

	orders, err := h.Ledger.ListByBuyer(r.Context(), buyerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("orders", orders))
}

// StripeWebhook is the asynchronous reconciliation intake. Verification
// failures are rejected with 400; processing failures that are worth a
// redelivery return 500 so the gateway retries; permanent failures are
// acknowledged to stop the redelivery loop.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("failed to read webhook payload: %v", err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	event, err := h.Verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		http.Error(w, errs.Public(err), http.StatusBadRequest)
		return
	}

	if err := h.Orchestrator.HandleWebhookEvent(r.Context(), event); err != nil {
		if errs.IsRetryable(err) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("event %s failed, requesting redelivery: %v", event.ID, err))
			http.Error(w, "webhook processing error", http.StatusInternalServerError)
			return
		}
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("event %s permanently rejected: %v", event.ID, err))
	}

	w.WriteHeader(http.StatusOK)
}

// ownedOrder loads the order from the URL and enforces that the caller is
// its buyer.
func (h *Handler) ownedOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		h.writeError(w, errs.E(errs.Validation, "order id is required"))
		return nil, false
	}

	ord, err := h.Ledger.Get(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}

	if buyerID := auth.BuyerID(r.Context()); ord.BuyerID != buyerID {
		h.writeError(w, errs.E(errs.Authorization, "order belongs to another buyer"))
		return nil, false
	}
	return ord, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	resp := utils.ErrorResponse(http.StatusText(status), errs.Public(err))

	if errs.KindOf(err) == errs.Internal {
		resp.TraceID = utils.GenerateTraceID()
		resp.Error = "internal error"
		h.Logger.Error("API", fmt.Sprintf("[%s] %v", resp.TraceID, err))
	} else if errs.KindOf(err) == errs.Gateway {
		// Raw processor text stays in logs and audit metadata.
		resp.Error = "payment failed"
		h.Logger.Error("API", fmt.Sprintf("gateway error: %v", err))
	}

	h.writeJSON(w, status, resp)
}
