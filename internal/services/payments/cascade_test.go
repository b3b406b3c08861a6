package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"agenda_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCascade() (*Cascade, *fakePaymentRepo, *fakeBookingRepo, *recordingNotifier) {
	payRepo := newFakePaymentRepo()
	bookRepo := newFakeBookingRepo()
	payRepo.bookings = bookRepo
	notifier := &recordingNotifier{}
	return NewCascade(payRepo, bookRepo, notifier), payRepo, bookRepo, notifier
}

func addBooking(repo *fakeBookingRepo, id, ownerID string, price float64) *models.Booking {
	booking := &models.Booking{
		OwnerID:        ownerID,
		ProfessionalID: "pro-1",
		Status:         models.BookingStatusPending,
		ScheduledAt:    time.Now().Add(24 * time.Hour),
		ServicePrice:   price,
	}
	booking.ID = id
	return repo.add(booking)
}

// TestCascade_ConfirmSingleBooking - подтверждение одиночного бронирования:
// запись paid, бронирование confirmed, событие разослано
func TestCascade_ConfirmSingleBooking(t *testing.T) {
	t.Parallel()

	cascade, payRepo, bookRepo, notifier := newTestCascade()

	addBooking(bookRepo, "booking-a", "owner-1", 200.00)
	record, err := payRepo.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	ref := "tx-42"
	require.NoError(t, cascade.Confirm(context.Background(), nil, record, 60.00, &ref))

	stored, err := payRepo.FindByID(nil, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, stored.Status)
	require.NotNil(t, stored.ProcessorRef)
	assert.Equal(t, "tx-42", *stored.ProcessorRef)
	assert.NotNil(t, stored.PaidAt)

	booking, err := bookRepo.FindByID(nil, "booking-a")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	require.NotNil(t, booking.PaidAmount)
	assert.Equal(t, 60.00, *booking.PaidAmount)

	// Событие шлется в отдельной горутине.
	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	evt := notifier.snapshot()[0]
	assert.Equal(t, "booking-a", evt.BookingID)
	assert.Equal(t, "owner-1", evt.OwnerID)
	assert.Equal(t, models.PaymentStatusPaid, evt.Status)
}

// TestCascade_SecondConfirmIsNoop - повторное подтверждение не повторяет
// побочных эффектов
func TestCascade_SecondConfirmIsNoop(t *testing.T) {
	t.Parallel()

	cascade, payRepo, bookRepo, notifier := newTestCascade()

	addBooking(bookRepo, "booking-a", "owner-1", 200.00)
	record, err := payRepo.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	ref := "tx-42"
	require.NoError(t, cascade.Confirm(context.Background(), nil, record, 60.00, &ref))
	require.NoError(t, cascade.Confirm(context.Background(), nil, record, 60.00, &ref))

	assert.Equal(t, 1, payRepo.transitions)
	assert.Equal(t, 1, bookRepo.confirmCalls)

	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, notifier.count())
}

// TestCascade_ConcurrentConfirm - гонка путей сверки: побеждает ровно один
func TestCascade_ConcurrentConfirm(t *testing.T) {
	t.Parallel()

	cascade, payRepo, bookRepo, _ := newTestCascade()

	addBooking(bookRepo, "booking-a", "owner-1", 200.00)
	record, err := payRepo.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref := "tx-42"
			assert.NoError(t, cascade.Confirm(context.Background(), nil, record, 60.00, &ref))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, payRepo.transitions)
	assert.Equal(t, 1, bookRepo.confirmCalls)
}

// TestCascade_PackageFanout - один платеж за пакет подтверждает все четыре
// бронирования и оставляет по конечной записи на каждое
func TestCascade_PackageFanout(t *testing.T) {
	t.Parallel()

	cascade, payRepo, bookRepo, notifier := newTestCascade()

	group := &models.PackageGroup{Token: "PKG777", OwnerID: "owner-1", ProfessionalID: "pro-1"}
	group.ID = "group-1"

	ids := []string{"booking-1", "booking-2", "booking-3", "booking-4"}
	var pkg []*models.Booking
	for i, id := range ids {
		booking := &models.Booking{
			OwnerID:        "owner-1",
			ProfessionalID: "pro-1",
			Status:         models.BookingStatusPending,
			ScheduledAt:    time.Now().Add(time.Duration(i+1) * 24 * time.Hour),
			ServicePrice:   166.67,
		}
		booking.ID = id
		pkg = append(pkg, booking)
	}
	require.NoError(t, bookRepo.CreatePackage(nil, group, pkg))

	// Посевная запись на первое бронирование, 30% от суммы пакета.
	record, err := payRepo.CreatePending(nil, "booking-1", 200.00, 30, 30*time.Minute)
	require.NoError(t, err)

	ref := "tx-pkg"
	require.NoError(t, cascade.Confirm(context.Background(), nil, record, 200.00, &ref))

	for _, id := range ids {
		booking, err := bookRepo.FindByID(nil, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status, "booking %s", id)
		require.NotNil(t, booking.PaidAmount, "booking %s", id)
		assert.Equal(t, 50.00, *booking.PaidAmount, "booking %s", id)
	}

	// Посевная запись + три аудиторских = по конечной записи на бронирование.
	assert.Equal(t, 4, payRepo.terminalCount())

	assert.Eventually(t, func() bool { return notifier.count() == 4 }, time.Second, 10*time.Millisecond)
}

// TestCascade_LegacyTokenFanout - пакет без явной группы находится по
// токену в заметке
func TestCascade_LegacyTokenFanout(t *testing.T) {
	t.Parallel()

	cascade, payRepo, bookRepo, _ := newTestCascade()

	ids := []string{"booking-1", "booking-2", "booking-3", "booking-4"}
	for i, id := range ids {
		booking := &models.Booking{
			OwnerID:        "owner-1",
			ProfessionalID: "pro-1",
			Status:         models.BookingStatusPending,
			ScheduledAt:    time.Now().Add(time.Duration(i+1) * 24 * time.Hour),
			ServicePrice:   100.00,
			Notes:          "Пакет занятий PKG123",
		}
		booking.ID = id
		bookRepo.add(booking)
	}

	record, err := payRepo.CreatePending(nil, "booking-2", 120.00, 30, 30*time.Minute)
	require.NoError(t, err)

	ref := "tx-legacy"
	require.NoError(t, cascade.Confirm(context.Background(), nil, record, 120.00, &ref))

	for _, id := range ids {
		booking, err := bookRepo.FindByID(nil, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status, "booking %s", id)
		require.NotNil(t, booking.PaidAmount)
		assert.Equal(t, 30.00, *booking.PaidAmount)
	}
	assert.Equal(t, 4, payRepo.terminalCount())
}

// TestCascade_CancelledSiblingSkipped - отмененный участник пакета не
// подтверждается, доля делится между оставшимися
func TestCascade_CancelledSiblingSkipped(t *testing.T) {
	t.Parallel()

	cascade, payRepo, bookRepo, _ := newTestCascade()

	group := &models.PackageGroup{Token: "PKG888", OwnerID: "owner-1", ProfessionalID: "pro-1"}
	group.ID = "group-1"

	var pkg []*models.Booking
	for i, id := range []string{"booking-1", "booking-2", "booking-3", "booking-4"} {
		booking := &models.Booking{
			OwnerID:        "owner-1",
			ProfessionalID: "pro-1",
			Status:         models.BookingStatusPending,
			ScheduledAt:    time.Now().Add(time.Duration(i+1) * 24 * time.Hour),
			ServicePrice:   100.00,
		}
		booking.ID = id
		pkg = append(pkg, booking)
	}
	require.NoError(t, bookRepo.CreatePackage(nil, group, pkg))
	bookRepo.bookings["booking-4"].Status = models.BookingStatusCancelled

	record, err := payRepo.CreatePending(nil, "booking-1", 90.00, 30, 30*time.Minute)
	require.NoError(t, err)

	ref := "tx-pkg"
	require.NoError(t, cascade.Confirm(context.Background(), nil, record, 90.00, &ref))

	for _, id := range []string{"booking-1", "booking-2", "booking-3"} {
		booking, err := bookRepo.FindByID(nil, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		require.NotNil(t, booking.PaidAmount)
		assert.Equal(t, 30.00, *booking.PaidAmount)
	}

	cancelled, err := bookRepo.FindByID(nil, "booking-4")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.PaidAmount)
}

// TestCascade_OrphanPayment - платеж без бронирования помечается paid,
// но каскад дальше не идет
func TestCascade_OrphanPayment(t *testing.T) {
	t.Parallel()

	cascade, payRepo, bookRepo, notifier := newTestCascade()

	record, err := payRepo.CreatePending(nil, "booking-ghost", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	ref := "tx-42"
	require.NoError(t, cascade.Confirm(context.Background(), nil, record, 60.00, &ref))

	stored, err := payRepo.FindByID(nil, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, stored.Status)

	assert.Equal(t, 0, bookRepo.confirmCalls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, notifier.count())
}
