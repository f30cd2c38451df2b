package handler

import (
	"errors"
	"net/http"

	"pledgepay/internal/events"
	"pledgepay/internal/outbox"
	"pledgepay/internal/services"
	"pledgepay/internal/transport/httpdto"
	apperrors "pledgepay/pkg/errors"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	orchestrator *services.PaymentOrchestrator
	relay        *outbox.Relay
}

func NewPaymentHandler(orchestrator *services.PaymentOrchestrator, relay *outbox.Relay) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator, relay: relay}
}

// Process submits a pledge for settlement synchronously. Replays with the
// same idempotency key return the stored payment with from_cache set.
func (h *PaymentHandler) Process(c *gin.Context) {
	var req httpdto.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
		return
	}

	p, fromCache, err := h.orchestrator.ProcessPledge(c.Request.Context(), events.PledgeCreatedEvent{
		PledgeID:       req.PledgeID,
		PayerID:        req.PayerID,
		PayerEmail:     req.PayerEmail,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		status, code := http.StatusInternalServerError, "REQUEST_FAILED"
		switch {
		case errors.Is(err, apperrors.ErrInvalidIdempotencyKey):
			status, code = http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY"
		case errors.Is(err, apperrors.ErrInvalidInput):
			status, code = http.StatusBadRequest, "INVALID_AMOUNT"
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
		return
	}

	status := http.StatusCreated
	if fromCache {
		status = http.StatusOK
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.NewPaymentResponse(p, fromCache)))
}

func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.orchestrator.GetPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		if errors.Is(err, apperrors.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("payment not found", "NOT_FOUND"))
			return
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewPaymentResponse(p, false)))
}

func (h *PaymentHandler) GetByPledge(c *gin.Context) {
	p, err := h.orchestrator.GetPaymentByPledgeID(c.Request.Context(), c.Param("pledgeId"))
	if err != nil {
		if errors.Is(err, apperrors.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("payment not found", "NOT_FOUND"))
			return
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewPaymentResponse(p, false)))
}

// OutboxStats exposes the relay backlog for operators.
func (h *PaymentHandler) OutboxStats(c *gin.Context) {
	pending, failed, err := h.relay.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.OutboxStatsResponse{
		Pending: pending,
		Failed:  failed,
	}))
}
