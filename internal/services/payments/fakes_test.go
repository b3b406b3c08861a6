package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agenda_backend/internal/models"
	"agenda_backend/internal/repositories"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Фейковые репозитории в памяти. Семантика TryTransition повторяет
// условный UPDATE боевой реализации: переход выполняется под мьютексом и
// только из pending.

type fakePaymentRepo struct {
	mu       sync.Mutex
	seq      int
	records  map[string]*models.PaymentRecord
	bookings *fakeBookingRepo // для скоупа по владельцу, может быть nil

	transitions int // количество успешных TryTransition
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{records: make(map[string]*models.PaymentRecord)}
}

func (f *fakePaymentRepo) nextID() string {
	f.seq++
	return fmt.Sprintf("payment-%04d", f.seq)
}

func (f *fakePaymentRepo) CreatePending(db *gorm.DB, bookingID string, amount float64, percentage int, ttl time.Duration) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record := &models.PaymentRecord{
		BookingID:  bookingID,
		Amount:     amount,
		Percentage: percentage,
		Status:     models.PaymentStatusPending,
		ExpiresAt:  time.Now().Add(ttl),
	}
	record.ID = f.nextID()
	record.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Millisecond)
	f.records[record.ID] = record

	out := *record
	return &out, nil
}

func (f *fakePaymentRepo) FindByID(db *gorm.DB, id string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok {
		return nil, repositories.ErrPaymentNotFound
	}
	out := *record
	return &out, nil
}

func (f *fakePaymentRepo) LatestForBooking(db *gorm.DB, bookingID string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *models.PaymentRecord
	for _, record := range f.records {
		if record.BookingID != bookingID {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, repositories.ErrPaymentNotFound
	}
	out := *latest
	return &out, nil
}

func (f *fakePaymentRepo) TryTransition(db *gorm.DB, id string, to models.PaymentStatus, processorRef *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok || record.Status != models.PaymentStatusPending {
		return false, nil
	}

	record.Status = to
	if to == models.PaymentStatusPaid {
		now := time.Now()
		record.PaidAt = &now
	}
	if processorRef != nil {
		record.ProcessorRef = processorRef
	}
	f.transitions++
	return true, nil
}

func (f *fakePaymentRepo) ListPendingFor(db *gorm.DB, scope repositories.Scope) ([]models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var out []models.PaymentRecord
	for _, record := range f.records {
		if record.Status != models.PaymentStatusPending || !record.ExpiresAt.After(now) {
			continue
		}
		if scope.BookingID != "" && record.BookingID != scope.BookingID {
			continue
		}
		if scope.OwnerID != "" && !f.ownedBy(record.BookingID, scope.OwnerID) {
			continue
		}
		out = append(out, *record)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakePaymentRepo) ownedBy(bookingID, ownerID string) bool {
	if f.bookings == nil {
		return false
	}
	booking, ok := f.bookings.bookings[bookingID]
	return ok && booking.OwnerID == ownerID
}

func (f *fakePaymentRepo) MarkExpired(db *gorm.DB, id string) (bool, error) {
	return f.TryTransition(db, id, models.PaymentStatusExpired, nil)
}

func (f *fakePaymentRepo) SetCode(db *gorm.DB, id, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok {
		return repositories.ErrPaymentNotFound
	}
	record.Code = &code
	return nil
}

func (f *fakePaymentRepo) CreatePaidAudit(db *gorm.DB, bookingID string, amount float64, percentage int, processorRef *string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	record := &models.PaymentRecord{
		BookingID:    bookingID,
		Amount:       amount,
		Percentage:   percentage,
		Status:       models.PaymentStatusPaid,
		ProcessorRef: processorRef,
		ExpiresAt:    now,
		PaidAt:       &now,
	}
	record.ID = f.nextID()
	record.CreatedAt = now
	f.records[record.ID] = record

	out := *record
	return &out, nil
}

// terminalCount возвращает количество записей в конечных статусах.
func (f *fakePaymentRepo) terminalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, record := range f.records {
		if record.Status.IsTerminal() {
			n++
		}
	}
	return n
}

type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	groups   map[string]*models.PackageGroup

	confirmCalls int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		bookings: make(map[string]*models.Booking),
		groups:   make(map[string]*models.PackageGroup),
	}
}

func (f *fakeBookingRepo) add(booking *models.Booking) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	f.bookings[booking.ID] = booking
	return booking
}

func (f *fakeBookingRepo) Create(db *gorm.DB, booking *models.Booking) error {
	f.add(booking)
	return nil
}

func (f *fakeBookingRepo) FindByID(db *gorm.DB, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok {
		return nil, repositories.ErrBookingNotFound
	}
	out := *booking
	return &out, nil
}

func (f *fakeBookingRepo) CreatePackage(db *gorm.DB, group *models.PackageGroup, bookings []*models.Booking) error {
	f.mu.Lock()
	f.groups[group.ID] = group
	f.mu.Unlock()

	for _, b := range bookings {
		b.PackageGroupID = &group.ID
		f.add(b)
	}
	return nil
}

func (f *fakeBookingRepo) FindGroupByID(db *gorm.DB, id string) (*models.PackageGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	group, ok := f.groups[id]
	if !ok {
		return nil, repositories.ErrGroupNotFound
	}
	return group, nil
}

func (f *fakeBookingRepo) FindGroupByToken(db *gorm.DB, token string) (*models.PackageGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, group := range f.groups {
		if group.Token == token {
			return group, nil
		}
	}
	return nil, repositories.ErrGroupNotFound
}

func (f *fakeBookingRepo) SetGroupSeedPayment(db *gorm.DB, groupID, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	group, ok := f.groups[groupID]
	if !ok {
		return repositories.ErrGroupNotFound
	}
	group.SeedPaymentID = &paymentID
	return nil
}

func (f *fakeBookingRepo) FindSiblingsByGroup(db *gorm.DB, groupID string) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Booking
	for _, b := range f.bookings {
		if b.PackageGroupID == nil || *b.PackageGroupID != groupID {
			continue
		}
		if b.Status == models.BookingStatusCancelled || b.Status == models.BookingStatusCompleted {
			continue
		}
		out = append(out, *b)
	}
	sortBookings(out)
	return out, nil
}

func (f *fakeBookingRepo) FindSiblingsByToken(db *gorm.DB, token, ownerID, professionalID string) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Booking
	for _, b := range f.bookings {
		if b.PackageToken() != token || b.OwnerID != ownerID || b.ProfessionalID != professionalID {
			continue
		}
		if b.Status == models.BookingStatusCancelled || b.Status == models.BookingStatusCompleted {
			continue
		}
		out = append(out, *b)
	}
	sortBookings(out)
	return out, nil
}

func sortBookings(bookings []models.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].ScheduledAt.Before(bookings[j].ScheduledAt)
	})
}

func (f *fakeBookingRepo) Confirm(db *gorm.DB, bookingID string, paidAmount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[bookingID]
	if !ok {
		return repositories.ErrBookingNotFound
	}
	booking.Status = models.BookingStatusConfirmed
	amount := paidAmount
	booking.PaidAmount = &amount
	f.confirmCalls++
	return nil
}

// recordingNotifier копит события под мьютексом. События рассылаются
// в отдельной горутине, поэтому проверки идут через Eventually.
type recordingNotifier struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (n *recordingNotifier) PaymentStatusChanged(ctx context.Context, evt StatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func (n *recordingNotifier) snapshot() []StatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]StatusEvent, len(n.events))
	copy(out, n.events)
	return out
}

// fakeProcessor возвращает заранее подготовленные транзакции.
type fakeProcessor struct {
	mu  sync.Mutex
	txs []ProcessorTransaction
	err error

	searches int
}

func (p *fakeProcessor) SearchApproved(ctx context.Context, from, to time.Time, limit int) ([]ProcessorTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searches++
	if p.err != nil {
		return nil, p.err
	}
	return p.txs, nil
}

// searchCount читается из тестов параллельно с работой мониторов.
func (p *fakeProcessor) searchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.searches
}

type fakeWebhookRepo struct {
	mu     sync.Mutex
	seq    int
	events map[string]*models.WebhookEvent
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{events: make(map[string]*models.WebhookEvent)}
}

func (f *fakeWebhookRepo) Create(db *gorm.DB, transactionID, status string, payload []byte) (*models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	event := &models.WebhookEvent{
		TransactionID: transactionID,
		Status:        status,
		Payload:       datatypes.JSON(payload),
	}
	event.ID = fmt.Sprintf("event-%04d", f.seq)
	f.events[event.ID] = event
	return event, nil
}

func (f *fakeWebhookRepo) MarkProcessed(db *gorm.DB, id string, procErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[id]
	if !ok {
		return fmt.Errorf("webhook event %s not found", id)
	}
	event.Processed = procErr == nil
	if procErr != nil {
		event.Error = procErr.Error()
	}
	return nil
}

func (f *fakeWebhookRepo) ListUnprocessed(db *gorm.DB, limit int) ([]models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.WebhookEvent
	for _, event := range f.events {
		if !event.Processed {
			out = append(out, *event)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
