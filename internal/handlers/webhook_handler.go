package handlers

import (
	"io"
	"net/http"

	"agenda_backend/internal/logger"
	"agenda_backend/internal/services/payments"

	"github.com/gin-gonic/gin"
)

// WebhookHandler принимает уведомления платежного процессинга.
// Эндпоинт публичный: процессинг не умеет в наш JWT, аутентичность
// уведомления не важна — вебхук лишь подсказка, подтверждение все равно
// проходит через сверку с хранилищем.
type WebhookHandler struct {
	*BaseHandler
	paymentService *payments.PaymentService
}

func NewWebhookHandler(base *BaseHandler, paymentService *payments.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    base,
		paymentService: paymentService,
	}
}

func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/processor/webhook", h.Receive)
}

// Receive всегда отвечает 200: процессинг ретраит не-200 ответы, а событие
// уже записано в журнал, так что повторы только шум.
func (h *WebhookHandler) Receive(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.CtxWarn(c.Request.Context(), "webhook: failed to read body", "error", err.Error())
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	db := h.GetDB(c)
	h.paymentService.HandleWebhook(c.Request.Context(), db, raw)

	c.JSON(http.StatusOK, gin.H{"received": true})
}
