package handlers

import (
	"fmt"
	"net/http"
	"time"

	"agenda_backend/internal/middleware"
	"agenda_backend/internal/models"
	"agenda_backend/internal/repositories"
	"agenda_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	*BaseHandler
	bookings repositories.BookingRepository
}

func NewBookingHandler(base *BaseHandler, bookings repositories.BookingRepository) *BookingHandler {
	return &BookingHandler{
		BaseHandler: base,
		bookings:    bookings,
	}
}

func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	bookings.Use(middleware.AuthMiddleware())
	{
		bookings.POST("", h.Create)
		bookings.POST("/package", h.CreatePackage)
		bookings.GET("/:bookingId", h.Get)
	}
}

type createBookingRequest struct {
	ProfessionalID string    `json:"professional_id" validate:"required,uuid"`
	ScheduledAt    time.Time `json:"scheduled_at" validate:"required"`
	ServicePrice   float64   `json:"service_price" validate:"required,gt=0"`
	Notes          string    `json:"notes"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	ownerID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return
	}

	var req createBookingRequest
	if !h.BindAndValidate(c, &req) {
		return
	}

	booking := &models.Booking{
		OwnerID:        ownerID,
		ProfessionalID: req.ProfessionalID,
		Status:         models.BookingStatusPending,
		ScheduledAt:    req.ScheduledAt,
		ServicePrice:   req.ServicePrice,
		Notes:          req.Notes,
	}

	db := h.GetDB(c)
	if err := h.bookings.Create(db, booking); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

type createPackageRequest struct {
	ProfessionalID string      `json:"professional_id" validate:"required,uuid"`
	ScheduledAt    []time.Time `json:"scheduled_at" validate:"required,len=4"`
	ServicePrice   float64     `json:"service_price" validate:"required,gt=0"`
}

// CreatePackage создает месячный пакет: группу и четыре бронирования одной
// транзакцией. Первое по расписанию становится посевным для чекаута.
func (h *BookingHandler) CreatePackage(c *gin.Context) {
	ownerID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return
	}

	var req createPackageRequest
	if !h.BindAndValidate(c, &req) {
		return
	}

	group := &models.PackageGroup{
		Token:          newPackageToken(),
		OwnerID:        ownerID,
		ProfessionalID: req.ProfessionalID,
	}

	bookings := make([]*models.Booking, 0, models.PackageSize)
	for _, at := range req.ScheduledAt {
		bookings = append(bookings, &models.Booking{
			OwnerID:        ownerID,
			ProfessionalID: req.ProfessionalID,
			Status:         models.BookingStatusPending,
			ScheduledAt:    at,
			ServicePrice:   req.ServicePrice,
		})
	}

	db := h.GetDB(c)
	if err := h.bookings.CreatePackage(db, group, bookings); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"group":    group,
		"bookings": bookings,
	})
}

func (h *BookingHandler) Get(c *gin.Context) {
	db := h.GetDB(c)
	booking, err := h.bookings.FindByID(db, c.Param("bookingId"))
	if err != nil {
		apperrors.HandleError(c, apperrors.ErrBookingNotFound)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// newPackageToken генерирует уникальный токен пакета в легаси-формате
// "PKG<цифры>". Наносекундная метка избегает коллизий без обращения к базе.
func newPackageToken() string {
	return fmt.Sprintf("PKG%d", time.Now().UnixNano())
}
