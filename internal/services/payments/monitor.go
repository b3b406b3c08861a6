package payments

import (
	"context"
	"sync"
	"time"

	"agenda_backend/internal/logger"
	"agenda_backend/internal/repositories"

	"gorm.io/gorm"
)

// TriggerConfig — интервалы триггеров одного открытого экрана оплаты.
type TriggerConfig struct {
	PollInterval     time.Duration
	Heartbeat        time.Duration
	MinSearchSpacing time.Duration
}

// MonitorManager владеет мониторами открытых экранов оплаты: по одному
// на бронирование, сколько бы раз экран ни запрашивал наблюдение.
type MonitorManager struct {
	db   *gorm.DB
	svc  *PaymentService
	feed *ChangeFeed // nil, если фид изменений выключен
	cfg  TriggerConfig

	mu       sync.Mutex
	monitors map[string]*BookingMonitor
}

func NewMonitorManager(db *gorm.DB, svc *PaymentService, feed *ChangeFeed, cfg TriggerConfig) *MonitorManager {
	return &MonitorManager{
		db:       db,
		svc:      svc,
		feed:     feed,
		cfg:      cfg,
		monitors: make(map[string]*BookingMonitor),
	}
}

// Watch запускает мониторинг бронирования. Повторный вызов для уже
// наблюдаемого бронирования — no-op.
func (m *MonitorManager) Watch(ctx context.Context, bookingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.monitors[bookingID]; exists {
		return
	}

	monitor := newBookingMonitor(ctx, bookingID, m.db, m.svc, m.feed, m.cfg, func() {
		m.mu.Lock()
		delete(m.monitors, bookingID)
		m.mu.Unlock()
	})
	m.monitors[bookingID] = monitor
	monitor.start()
	logger.CtxInfo(ctx, "booking monitor started", "booking_id", bookingID)
}

// Unwatch останавливает мониторинг (закрытие экрана оплаты).
func (m *MonitorManager) Unwatch(bookingID string) {
	m.mu.Lock()
	monitor := m.monitors[bookingID]
	m.mu.Unlock()

	if monitor != nil {
		monitor.stop()
	}
}

// StopAll останавливает все мониторы (завершение сервера).
func (m *MonitorManager) StopAll() {
	m.mu.Lock()
	all := make([]*BookingMonitor, 0, len(m.monitors))
	for _, monitor := range m.monitors {
		all = append(all, monitor)
	}
	m.mu.Unlock()

	for _, monitor := range all {
		monitor.stop()
	}
}

// Watching сообщает, наблюдается ли бронирование сейчас.
func (m *MonitorManager) Watching(bookingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.monitors[bookingID]
	return ok
}

// BookingMonitor — хэндл фоновых задач одного открытого бронирования:
// скоуповый поллер, резервный heartbeat и слушатель фида изменений.
// Хэндл владеет собственным токеном отмены и гасится ровно один раз,
// каким бы путем ни пришло подтверждение (stopOnce). Сами переходы
// статуса защищены compare-and-set в хранилище, так что избыточность
// задач безопасна по построению.
type BookingMonitor struct {
	bookingID string
	db        *gorm.DB
	svc       *PaymentService
	feed      *ChangeFeed
	cfg       TriggerConfig

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	onStop   func()

	searchMu   sync.Mutex
	lastSearch time.Time
}

func newBookingMonitor(parent context.Context, bookingID string, db *gorm.DB, svc *PaymentService, feed *ChangeFeed, cfg TriggerConfig, onStop func()) *BookingMonitor {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	ctx = logger.WithBookingID(ctx, bookingID)
	return &BookingMonitor{
		bookingID: bookingID,
		db:        db,
		svc:       svc,
		feed:      feed,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		onStop:    onStop,
	}
}

func (b *BookingMonitor) start() {
	go b.runPoller()
	go b.runHeartbeat()
	if b.feed != nil {
		go b.runFeedListener()
	}
}

// stop гасит хэндл ровно один раз: отменяет контекст всех задач и
// выписывает монитор из менеджера.
func (b *BookingMonitor) stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.onStop()
		logger.CtxInfo(b.ctx, "booking monitor stopped")
	})
}

// runPoller — основной триггер экрана: локальная проверка на каждый тик,
// поиск на стороне процессинга — не чаще минимального зазора.
func (b *BookingMonitor) runPoller() {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.checkLocal() {
				return
			}
			if !b.allowSearch() {
				continue
			}
			if err := b.svc.SearchAndReconcile(b.ctx, b.db, repositories.Scope{BookingID: b.bookingID}); err != nil {
				// Транзиентно, повтор на следующем тике.
				continue
			}
			if b.checkLocal() {
				return
			}
		}
	}
}

// runHeartbeat — независимый резервный таймер на случай потери поллера.
// Ходит только в локальное хранилище.
func (b *BookingMonitor) runHeartbeat() {
	ticker := time.NewTicker(b.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.checkLocal() {
				return
			}
		}
	}
}

// runFeedListener перечитывает локальное хранилище на каждый пульс фида.
func (b *BookingMonitor) runFeedListener() {
	ch, unsubscribe := b.feed.Subscribe(b.bookingID)
	defer unsubscribe()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ch:
			if b.checkLocal() {
				return
			}
		}
	}
}

func (b *BookingMonitor) checkLocal() bool {
	terminal, err := b.svc.CheckLocal(b.ctx, b.db, b.bookingID)
	if err != nil {
		logger.CtxWarn(b.ctx, "monitor: local check failed", "error", err.Error())
		return false
	}
	if terminal {
		b.stop()
	}
	return terminal
}

// allowSearch ограничивает частоту обращений к процессингу независимо от
// того, как часто тикает таймер или пульсирует фид.
func (b *BookingMonitor) allowSearch() bool {
	b.searchMu.Lock()
	defer b.searchMu.Unlock()

	now := time.Now()
	if now.Sub(b.lastSearch) < b.cfg.MinSearchSpacing {
		return false
	}
	b.lastSearch = now
	return true
}
