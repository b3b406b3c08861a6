package payments

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agenda_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Конфиг с "выключенными" интервалами: часовые тики не успевают сработать
// за время теста, активен только проверяемый путь.
func triggerCfg(poll, heartbeat, spacing time.Duration) TriggerConfig {
	return TriggerConfig{
		PollInterval:     poll,
		Heartbeat:        heartbeat,
		MinSearchSpacing: spacing,
	}
}

// TestMonitorManager_WatchIdempotent - повторный Watch не плодит второй
// монитор, Unwatch идемпотентен
func TestMonitorManager_WatchIdempotent(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	addBooking(f.bookings, "booking-a", "owner-1", 200.00)

	mgr := NewMonitorManager(nil, f.svc, nil, triggerCfg(time.Hour, time.Hour, time.Hour))
	defer mgr.StopAll()

	mgr.Watch(context.Background(), "booking-a")
	mgr.Watch(context.Background(), "booking-a")
	assert.True(t, mgr.Watching("booking-a"))

	mgr.Unwatch("booking-a")
	assert.False(t, mgr.Watching("booking-a"))

	// Повторный Unwatch и StopAll - безопасные no-op.
	mgr.Unwatch("booking-a")
	mgr.StopAll()
}

// TestBookingMonitor_PollerTearsDownOnPaid - поллер замечает конечный статус
// и гасит монитор
func TestBookingMonitor_PollerTearsDownOnPaid(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	addBooking(f.bookings, "booking-a", "owner-1", 200.00)
	record, err := f.payments.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	mgr := NewMonitorManager(nil, f.svc, nil, triggerCfg(10*time.Millisecond, time.Hour, time.Hour))
	defer mgr.StopAll()

	mgr.Watch(context.Background(), "booking-a")
	require.True(t, mgr.Watching("booking-a"))

	// Подтверждение приходит "из другого пути" (вебхук, фид) - поллеру
	// остается только заметить конечный статус локально.
	ok, err := f.payments.TryTransition(nil, record.ID, models.PaymentStatusPaid, nil)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool { return !mgr.Watching("booking-a") },
		2*time.Second, 10*time.Millisecond)
}

// TestBookingMonitor_HeartbeatRedundancy - heartbeat гасит монитор и без
// поллера
func TestBookingMonitor_HeartbeatRedundancy(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	addBooking(f.bookings, "booking-a", "owner-1", 200.00)
	record, err := f.payments.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	// Поллер на часовом тике: конечный статус может заметить только heartbeat.
	mgr := NewMonitorManager(nil, f.svc, nil, triggerCfg(time.Hour, 10*time.Millisecond, time.Hour))
	defer mgr.StopAll()

	mgr.Watch(context.Background(), "booking-a")

	ok, err := f.payments.TryTransition(nil, record.ID, models.PaymentStatusPaid, nil)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool { return !mgr.Watching("booking-a") },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.processor.searchCount(), "heartbeat ходит только в локальное хранилище")
}

// TestBookingMonitor_ExpiryTearsDown - истечение срока записи тоже конечно:
// монитор помечает запись expired и гаснет
func TestBookingMonitor_ExpiryTearsDown(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	addBooking(f.bookings, "booking-a", "owner-1", 200.00)
	record, err := f.payments.CreatePending(nil, "booking-a", 60.00, 30, -time.Minute)
	require.NoError(t, err)

	mgr := NewMonitorManager(nil, f.svc, nil, triggerCfg(time.Hour, 10*time.Millisecond, time.Hour))
	defer mgr.StopAll()

	mgr.Watch(context.Background(), "booking-a")

	assert.Eventually(t, func() bool { return !mgr.Watching("booking-a") },
		2*time.Second, 10*time.Millisecond)

	stored, err := f.payments.FindByID(nil, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, stored.Status)
}

// TestBookingMonitor_SearchSpacing - частота обращений к процессингу
// ограничена минимальным зазором независимо от частоты тиков
func TestBookingMonitor_SearchSpacing(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	addBooking(f.bookings, "booking-a", "owner-1", 200.00)
	_, err := f.payments.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	// Тики каждые 5мс, зазор 10с: за время теста допустим ровно один поиск.
	mgr := NewMonitorManager(nil, f.svc, nil, triggerCfg(5*time.Millisecond, time.Hour, 10*time.Second))
	defer mgr.StopAll()

	mgr.Watch(context.Background(), "booking-a")

	assert.Eventually(t, func() bool { return f.processor.searchCount() >= 1 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.processor.searchCount())
}

// TestBookingMonitor_TeardownExactlyOnce - каким бы путем (и сколькими
// одновременно) ни пришла остановка, onStop срабатывает один раз
func TestBookingMonitor_TeardownExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	addBooking(f.bookings, "booking-a", "owner-1", 200.00)
	record, err := f.payments.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	var stops int32
	monitor := newBookingMonitor(context.Background(), "booking-a", nil, f.svc, nil,
		triggerCfg(10*time.Millisecond, 10*time.Millisecond, time.Hour),
		func() { atomic.AddInt32(&stops, 1) })
	monitor.start()

	// Поллер и heartbeat замечают конечный статус наперегонки.
	ok, err := f.payments.TryTransition(nil, record.ID, models.PaymentStatusPaid, nil)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&stops) == 1 },
		2*time.Second, 10*time.Millisecond)

	// Дополнительные остановки со стороны - тоже no-op.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.stop()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
}

// TestChangeFeed_SubscribePulse - подписка пульсирует на уведомление своего
// бронирования, лишние пульсы схлопываются в один
func TestChangeFeed_SubscribePulse(t *testing.T) {
	t.Parallel()

	feed := &ChangeFeed{subs: make(map[string]map[int]chan struct{})}

	ch, unsubscribe := feed.Subscribe("booking-a")
	defer unsubscribe()

	feed.notify("booking-a")
	select {
	case <-ch:
	default:
		t.Fatal("ожидался пульс после notify")
	}

	// Два уведомления подряд без чтения - один буферизованный пульс.
	feed.notify("booking-a")
	feed.notify("booking-a")
	<-ch
	select {
	case <-ch:
		t.Fatal("пульсы должны схлопываться в один")
	default:
	}

	// Чужое бронирование не пульсирует.
	feed.notify("booking-b")
	select {
	case <-ch:
		t.Fatal("пульс чужого бронирования")
	default:
	}
}

// TestChangeFeed_UnsubscribeIdempotent - отписка идемпотентна, уведомления
// после нее не паникуют и не доставляются
func TestChangeFeed_UnsubscribeIdempotent(t *testing.T) {
	t.Parallel()

	feed := &ChangeFeed{subs: make(map[string]map[int]chan struct{})}

	ch, unsubscribe := feed.Subscribe("booking-a")
	unsubscribe()
	unsubscribe()

	feed.notify("booking-a")
	select {
	case <-ch:
		t.Fatal("пульс после отписки")
	default:
	}
}

// TestBookingMonitor_FeedPulseRecheck - пульс фида заставляет монитор
// перечитать хранилище; поллер и heartbeat при этом выключены
func TestBookingMonitor_FeedPulseRecheck(t *testing.T) {
	t.Parallel()

	f := newServiceFixture()
	addBooking(f.bookings, "booking-a", "owner-1", 200.00)
	record, err := f.payments.CreatePending(nil, "booking-a", 60.00, 30, 30*time.Minute)
	require.NoError(t, err)

	feed := &ChangeFeed{subs: make(map[string]map[int]chan struct{})}
	mgr := NewMonitorManager(nil, f.svc, feed, triggerCfg(time.Hour, time.Hour, time.Hour))
	defer mgr.StopAll()

	mgr.Watch(context.Background(), "booking-a")
	require.True(t, mgr.Watching("booking-a"))

	ok, err := f.payments.TryTransition(nil, record.ID, models.PaymentStatusPaid, nil)
	require.NoError(t, err)
	require.True(t, ok)

	// Пульсируем до срабатывания: подписка слушателя оформляется асинхронно.
	assert.Eventually(t, func() bool {
		feed.notify("booking-a")
		return !mgr.Watching("booking-a")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.processor.searchCount(), "фид не ходит в процессинг")
}
