package handlers

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	BookingHandler *BookingHandler
	PaymentHandler *PaymentHandler
	WebhookHandler *WebhookHandler
}
