package handler

import (
	"errors"
	"net/http"

	"pledgepay/internal/domain/money"
	"pledgepay/internal/services"
	"pledgepay/internal/transport/httpdto"
	apperrors "pledgepay/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	ledger *services.LedgerService
}

func NewAccountHandler(ledger *services.LedgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

func (h *AccountHandler) Get(c *gin.Context) {
	a, err := h.ledger.GetAccount(c.Request.Context(), c.Param("email"))
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("account not found", "NOT_FOUND"))
			return
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewAccountResponse(a)))
}

func (h *AccountHandler) AddFunds(c *gin.Context) {
	var req httpdto.AddFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
		return
	}

	amountCents, err := money.Parse(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_AMOUNT"))
		return
	}

	a, err := h.ledger.AddFunds(c.Request.Context(), req.OwnerID, c.Param("email"), req.HolderName, amountCents)
	if err != nil {
		if errors.Is(err, apperrors.ErrNegativeAmount) {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_AMOUNT"))
			return
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewAccountResponse(a)))
}

func (h *AccountHandler) ListTransactions(c *gin.Context) {
	rows, err := h.ledger.GetTransactions(c.Request.Context(), c.Param("email"))
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("account not found", "NOT_FOUND"))
			return
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewTransactionResponses(rows)))
}
