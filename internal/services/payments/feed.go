package payments

import (
	"context"
	"sync"
	"time"

	"agenda_backend/internal/logger"

	"github.com/lib/pq"
)

// Каналы NOTIFY, которые наполняют триггеры БД (см. database.AutoMigrate).
// Payload уведомления — booking id затронутой строки.
const (
	channelPayments = "payment_records_changed"
	channelBookings = "bookings_changed"
)

// ChangeFeed — подписка на построчные изменения таблиц платежей и
// бронирований через LISTEN/NOTIFY. Дает мониторам дешевый путь сверки:
// любое изменение строки — повод перечитать локальное хранилище, к
// процессингу фид не ходит.
type ChangeFeed struct {
	listener *pq.Listener

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan struct{}
}

func NewChangeFeed(dsn string) *ChangeFeed {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("change feed listener event", "event", int(ev), "error", err.Error())
		}
	})
	return &ChangeFeed{
		listener: listener,
		subs:     make(map[string]map[int]chan struct{}),
	}
}

// Run слушает каналы до отмены контекста.
func (f *ChangeFeed) Run(ctx context.Context) {
	defer f.listener.Close()

	for _, ch := range []string{channelPayments, channelBookings} {
		if err := f.listener.Listen(ch); err != nil {
			logger.Error("change feed: LISTEN failed", "channel", ch, "error", err.Error())
			return
		}
	}
	logger.Info("change feed started", "channels", []string{channelPayments, channelBookings})

	for {
		select {
		case <-ctx.Done():
			logger.Info("change feed stopped")
			return
		case n := <-f.listener.Notify:
			// n == nil приходит после переподключения listener'а.
			if n == nil {
				continue
			}
			f.notify(n.Extra)
		}
	}
}

// Subscribe возвращает канал, пульсирующий на каждое изменение строк
// бронирования, и функцию отписки. Отписка идемпотентна.
func (f *ChangeFeed) Subscribe(bookingID string) (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	ch := make(chan struct{}, 1)

	if f.subs[bookingID] == nil {
		f.subs[bookingID] = make(map[int]chan struct{})
	}
	f.subs[bookingID][id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[bookingID], id)
			if len(f.subs[bookingID]) == 0 {
				delete(f.subs, bookingID)
			}
		})
	}
	return ch, unsubscribe
}

func (f *ChangeFeed) notify(bookingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs[bookingID] {
		select {
		case ch <- struct{}{}:
		default:
			// Подписчик еще не разобрал прошлый пульс — достаточно одного.
		}
	}
}
