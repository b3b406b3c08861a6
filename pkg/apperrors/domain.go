package apperrors

import (
	"net/http"
)

/*
Фабрики и предопределенные переменные для доменных ошибок
бронирований и платежей.
*/

// ErrNotFound - фабрика для ошибки "не найдено" (404)
// Используется, когда ошибка репозитория (типа gorm.ErrRecordNotFound)
// должна быть преобразована в AppError.
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

// ErrConflict - общая фабрика для конфликтов (409)
func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

// ErrInvalidStatus - фабрика для невалидных статусов (400)
func ErrInvalidStatus(domain, message string) *AppError {
	return New(CodeInvalidStatus, domain, message, http.StatusBadRequest)
}

// --- Code Codec ---

// ErrInvalidPaymentCode - входные данные кодека не прошли проверку.
// Ошибка локальная и исправляется вызывающим, повторов не требует.
func ErrInvalidPaymentCode(err error) *AppError {
	return Wrap(err, CodeValidationFailed, "paycode", "Invalid payment code parameters", http.StatusBadRequest)
}

// --- Payments ---

// ErrPaymentNotFound - запись платежа не найдена.
var ErrPaymentNotFound = New(
	CodeNotFound,
	"payment",
	"Payment record not found",
	http.StatusNotFound,
)

// ErrPaymentAlreadyTerminal - запись платежа уже в конечном статусе.
// В потоках сверки это не ошибка (TryTransition вернет false), наружу
// отдается только из явных пользовательских операций.
var ErrPaymentAlreadyTerminal = New(
	CodeInvalidStatus,
	"payment",
	"Payment record is already in a terminal status",
	http.StatusConflict,
)

// ErrProcessorUnavailable - процессинг недоступен или не ответил вовремя.
// Транзиентная ошибка: следующий цикл опроса повторит запрос.
func ErrProcessorUnavailable(err error) *AppError {
	return Wrap(err, CodeExternalServiceError, "payment", "Payment processor unavailable", http.StatusServiceUnavailable)
}

// --- Bookings ---

// ErrBookingNotFound - бронирование не найдено.
var ErrBookingNotFound = New(
	CodeNotFound,
	"booking",
	"Booking not found",
	http.StatusNotFound,
)

// ErrBookingNotPending - операция допустима только для неподтвержденного
// бронирования.
var ErrBookingNotPending = New(
	CodeInvalidStatus,
	"booking",
	"Booking is not in pending status",
	http.StatusConflict,
)
