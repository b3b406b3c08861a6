package handlers

import (
	"net/http"

	"agenda_backend/internal/middleware"
	"agenda_backend/internal/services/payments"
	"agenda_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	*BaseHandler
	paymentService *payments.PaymentService
	monitors       *payments.MonitorManager
}

func NewPaymentHandler(base *BaseHandler, paymentService *payments.PaymentService, monitors *payments.MonitorManager) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler:    base,
		paymentService: paymentService,
		monitors:       monitors,
	}
}

func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	pay := r.Group("/payments")
	pay.Use(middleware.AuthMiddleware())
	{
		pay.POST("/checkout", h.Checkout)
		pay.GET("/booking/:bookingId/status", h.Status)

		// Экран оплаты открылся/закрылся.
		pay.POST("/booking/:bookingId/watch", h.Watch)
		pay.DELETE("/booking/:bookingId/watch", h.Unwatch)
	}
}

type checkoutRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
}

// Checkout создает (или возвращает существующую) pending-предоплату
// бронирования вместе с платежным кодом.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if !h.BindAndValidate(c, &req) {
		return
	}

	db := h.GetDB(c)
	result, err := h.paymentService.Checkout(c.Request.Context(), db, req.BookingID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Status возвращает состояние оплаты для экрана оплаты.
func (h *PaymentHandler) Status(c *gin.Context) {
	bookingID := c.Param("bookingId")

	db := h.GetDB(c)
	status, err := h.paymentService.Status(c.Request.Context(), db, bookingID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Watch запускает фоновый мониторинг оплаты бронирования. Идемпотентен:
// повторное открытие экрана не плодит второй монитор.
func (h *PaymentHandler) Watch(c *gin.Context) {
	bookingID := c.Param("bookingId")

	// Убеждаемся, что бронирование существует, прежде чем заводить задачи.
	db := h.GetDB(c)
	if _, err := h.paymentService.Status(c.Request.Context(), db, bookingID); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	h.monitors.Watch(c.Request.Context(), bookingID)
	c.JSON(http.StatusOK, gin.H{"watching": true})
}

// Unwatch останавливает мониторинг (экран оплаты закрыт).
func (h *PaymentHandler) Unwatch(c *gin.Context) {
	bookingID := c.Param("bookingId")
	h.monitors.Unwatch(bookingID)
	c.JSON(http.StatusOK, gin.H{"watching": false})
}
