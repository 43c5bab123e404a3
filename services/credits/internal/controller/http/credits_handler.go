package http

import (
	"errors"
	"net/http"
	"strconv"

	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
	"pixelmint/services/credits/internal/usecase"

	"github.com/gin-gonic/gin"
)

type CreditsHandler struct {
	balanceUseCase    usecase.BalanceUseCase
	purchaseUseCase   usecase.PurchaseUseCase
	generationUseCase usecase.GenerationUseCase
	logger            *logger.Logger
}

func NewCreditsHandler(
	balanceUseCase usecase.BalanceUseCase,
	purchaseUseCase usecase.PurchaseUseCase,
	generationUseCase usecase.GenerationUseCase,
	log *logger.Logger,
) *CreditsHandler {
	return &CreditsHandler{
		balanceUseCase:    balanceUseCase,
		purchaseUseCase:   purchaseUseCase,
		generationUseCase: generationUseCase,
		logger:            log,
	}
}

type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Count  int    `json:"count" binding:"required,min=1,max=10"`
	Size   string `json:"size" binding:"required"`
}

type PurchaseRequest struct {
	PackageID        string `json:"package_id" binding:"required"`
	PaymentReference string `json:"payment_reference" binding:"required"`
}

// GetBalance godoc
// @Summary      Get credit balance
// @Description  Get the credit balance and recent transactions for the authenticated user
// @Tags         credits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  usecase.BalanceSummary
// @Router       /credits [get]
func (h *CreditsHandler) GetBalance(c *gin.Context) {
	userID := c.GetString("user_id")

	summary, err := h.balanceUseCase.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to get balance: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetTransactions godoc
// @Summary      Get transaction history
// @Description  Get the credit transaction history for the authenticated user
// @Tags         credits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Number of transactions"
// @Param        offset query int false "Offset"
// @Success      200  {object}  map[string]interface{}
// @Router       /credits/transactions [get]
func (h *CreditsHandler) GetTransactions(c *gin.Context) {
	userID := c.GetString("user_id")
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	transactions, err := h.balanceUseCase.GetTransactions(userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to get transactions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions, "count": len(transactions)})
}

// ListPackages godoc
// @Summary      List credit packages
// @Description  List the purchasable credit packages
// @Tags         credits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /credits/packages [get]
func (h *CreditsHandler) ListPackages(c *gin.Context) {
	packages, err := h.purchaseUseCase.ListPackages()
	if err != nil {
		h.logger.Error("Failed to list packages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

// ConfirmPurchase godoc
// @Summary      Confirm a credit purchase
// @Description  Verify a payment reference and credit the purchased package. Safe to retry: a replayed reference is acknowledged without double-crediting.
// @Tags         credits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body PurchaseRequest true "Purchase confirmation"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      402  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /credits/purchase [post]
func (h *CreditsHandler) ConfirmPurchase(c *gin.Context) {
	userID := c.GetString("user_id")

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.purchaseUseCase.ConfirmPurchase(c.Request.Context(), userID, req.PackageID, req.PaymentReference)
	if err != nil {
		switch {
		case entity.IsValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, entity.ErrPackageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "credit package not found"})
		case errors.Is(err, entity.ErrRetriesExhausted):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unable to process purchase, please retry"})
		default:
			h.logger.Error("Failed to confirm purchase: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment verification unavailable"})
		}
		return
	}

	switch result.Status {
	case usecase.PurchaseVerificationFailed:
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment could not be verified"})
	case usecase.PurchaseDuplicate:
		c.JSON(http.StatusOK, gin.H{
			"message":        "Purchase already processed",
			"duplicate":      true,
			"transaction_id": result.TransactionID,
			"credits_added":  result.CreditsAdded,
			"balance":        result.NewBalance,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":        "Purchase completed",
			"duplicate":      false,
			"transaction_id": result.TransactionID,
			"credits_added":  result.CreditsAdded,
			"balance":        result.NewBalance,
		})
	}
}

// Generate godoc
// @Summary      Generate images
// @Description  Deduct credits and generate images. On provider failure the deducted credits are refunded.
// @Tags         generation
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body GenerateRequest true "Generation request"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      402  {object}  map[string]interface{}
// @Failure      502  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /generate [post]
func (h *CreditsHandler) Generate(c *gin.Context) {
	userID := c.GetString("user_id")

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.generationUseCase.Generate(c.Request.Context(), userID, entity.GenerationRequest{
		Prompt: req.Prompt,
		Count:  req.Count,
		Size:   req.Size,
	})
	if err != nil {
		switch {
		case entity.IsValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, entity.ErrRetriesExhausted):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unable to process request, please retry"})
		case errors.Is(err, entity.ErrReconciliationRequired):
			// Generation failed and the refund could not be committed yet;
			// the reconciler will return the credits shortly.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":          "generation failed, refund pending",
				"refund_pending": true,
			})
		default:
			h.logger.Error("Failed to generate: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	switch result.Status {
	case usecase.GenerationInsufficientCredits:
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "insufficient credits",
			"required":  result.Required,
			"available": result.Available,
		})
	case usecase.GenerationFailedRefunded:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "generation failed",
			"reason":   result.FailureReason,
			"refunded": true,
			"balance":  result.NewBalance,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"job_id":         result.JobID,
			"transaction_id": result.TransactionID,
			"credits_spent":  result.CreditsSpent,
			"balance":        result.NewBalance,
			"images":         result.ArtifactURLs,
		})
	}
}
