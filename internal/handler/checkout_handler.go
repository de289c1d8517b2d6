package handler

import (
	"errors"
	"net/http"
	"strconv"

	"tiketi/internal/middleware"
	"tiketi/internal/service"
	"tiketi/pkg/checkout"

	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	svc *service.CheckoutService
}

func NewCheckoutHandler(svc *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

// Submit handles POST /api/v1/checkout. It answers once the STK push has
// been accepted or refused; the outcome is then streamed on /ws/checkout
// or read back with GET.
func (h *CheckoutHandler) Submit(c *gin.Context) {
	var req struct {
		Phone            string `json:"phone"`
		AmountKES        int64  `json:"amount_kes" binding:"required,min=1"`
		AccountReference string `json:"account_reference" binding:"required,max=64"`
		Description      string `json:"description" binding:"max=255"`
		EventID          string `json:"event_id" binding:"max=64"`
		TicketQuantity   int    `json:"ticket_quantity" binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.svc.Submit(c.Request.Context(), middleware.GetUserID(c), middleware.GetInstance(c), checkout.SubmitRequest{
		Phone:            req.Phone,
		Amount:           req.AmountKES,
		AccountReference: req.AccountReference,
		Description:      req.Description,
		EventID:          req.EventID,
		TicketQuantity:   req.TicketQuantity,
		BearerToken:      middleware.GetAccessToken(c),
	})
	if err != nil {
		c.JSON(submitStatus(err), gin.H{"error": errorMessage(err), "session": sess})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": sess})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, checkout.ErrSuperseded), errors.Is(err, checkout.ErrCancelled):
		return http.StatusConflict
	}
	switch checkout.KindOf(err) {
	case checkout.KindValidation:
		return http.StatusBadRequest
	case checkout.KindInitiation:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	var ce *checkout.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

// Get handles GET /api/v1/checkout.
func (h *CheckoutHandler) Get(c *gin.Context) {
	sess, ok := h.svc.Snapshot(middleware.GetUserID(c), middleware.GetInstance(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no checkout in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Cancel handles POST /api/v1/checkout/cancel.
func (h *CheckoutHandler) Cancel(c *gin.Context) {
	sess, ok := h.svc.Cancel(middleware.GetUserID(c), middleware.GetInstance(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no checkout in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Release handles DELETE /api/v1/checkout, sent when the checkout UI closes.
func (h *CheckoutHandler) Release(c *gin.Context) {
	if !h.svc.Release(middleware.GetUserID(c), middleware.GetInstance(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no checkout in progress"})
		return
	}
	c.Status(http.StatusNoContent)
}

// History handles GET /api/v1/checkout/history.
func (h *CheckoutHandler) History(c *gin.Context) {
	list, err := h.svc.History(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(historyStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": list})
}

// Recent handles GET /api/v1/admin/checkouts?state=&limit=.
func (h *CheckoutHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.svc.Recent(c.Request.Context(), c.Query("state"), limit)
	if err != nil {
		c.JSON(historyStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": list})
}

func historyStatus(err error) int {
	if errors.Is(err, service.ErrHistoryDisabled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
