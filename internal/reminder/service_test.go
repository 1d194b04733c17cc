package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// memStore is an in-memory storage.Store for engine tests. Time validation
// lives in the service (against its injected clock), so none happens here.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]storage.Reminder
	audits []storage.AuditEntry

	listErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]storage.Reminder)}
}

func (m *memStore) CreateReminder(ctx context.Context, r storage.Reminder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.rows[r.ID] = r
	return r.ID, nil
}

func (m *memStore) GetReminder(ctx context.Context, id int64) (*storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) ListReminders(ctx context.Context) ([]storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]storage.Reminder, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListRemindersForOwner(ctx context.Context, owner int64) ([]storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Reminder
	for _, r := range m.rows {
		if r.OwnerID == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) DeleteReminder(ctx context.Context, id, owner int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.OwnerID != owner {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memStore) CountRemindersOnDay(ctx context.Context, owner int64, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	y, mo, d := day.UTC().Date()
	n := 0
	for _, r := range m.rows {
		ry, rmo, rd := r.FireAt.UTC().Date()
		if r.OwnerID == owner && ry == y && rmo == mo && rd == d {
			n++
		}
	}
	return n, nil
}

func (m *memStore) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

func (m *memStore) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok
}

func (m *memStore) put(r storage.Reminder) storage.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.rows[r.ID] = r
	return r
}

func (m *memStore) lastAudit() (storage.AuditEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.audits) == 0 {
		return storage.AuditEntry{}, false
	}
	return m.audits[len(m.audits)-1], true
}

type sent struct {
	to   int64
	text string
}

type memMessenger struct {
	mu      sync.Mutex
	direct  []sent
	channel []sent
	err     error
}

func (m *memMessenger) SendDirect(ctx context.Context, userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.direct = append(m.direct, sent{to: userID, text: text})
	return nil
}

func (m *memMessenger) SendChannel(ctx context.Context, channelID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.channel = append(m.channel, sent{to: channelID, text: text})
	return nil
}

func (m *memMessenger) sentCounts() (direct, channel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.direct), len(m.channel)
}

var testBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) (*Service, *memStore, *memMessenger, *clock.Mock) {
	t.Helper()
	store := newMemStore()
	msgr := &memMessenger{}
	clk := clock.NewMock()
	clk.Set(testBase)

	svc := New(cfg, store, msgr, clk, logx.Nop())
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc, store, msgr, clk
}

// settle yields to worker goroutines so they reach their next timer before
// the mock clock advances.
func settle() { time.Sleep(20 * time.Millisecond) }

func TestCreateValidation(t *testing.T) {
	svc, store, _, _ := newTestService(t, Config{})

	t.Run("unparseable time", func(t *testing.T) {
		_, err := svc.Create(context.Background(), 10, 20, "gibberish###", "x", false)
		var pe *ParseError
		require.ErrorAs(t, err, &pe)
	})

	t.Run("past time", func(t *testing.T) {
		_, err := svc.Create(context.Background(), 10, 20, "2001-01-01 00:00", "x", false)
		require.ErrorIs(t, err, ErrPastTime)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		rows, err := store.ListReminders(context.Background())
		require.NoError(t, err)
		require.Empty(t, rows)
		require.Equal(t, 0, svc.Pending())
	})
}

func TestCreateDeliversToChannel(t *testing.T) {
	svc, store, msgr, clk := newTestService(t, Config{})

	rem, err := svc.Create(context.Background(), 10, 20, "2026-03-14 12:30", "drink water", false)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC), rem.FireAt)
	require.Equal(t, 1, svc.Pending())

	settle()
	clk.Add(30 * time.Minute)

	require.Eventually(t, func() bool {
		_, ch := msgr.sentCounts()
		return ch == 1 && !store.has(rem.ID)
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, sent{to: 20, text: "drink water"}, msgr.channel[0])
	require.Eventually(t, func() bool { return svc.Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCreateDeliversByDM(t *testing.T) {
	svc, store, msgr, clk := newTestService(t, Config{})

	rem, err := svc.Create(context.Background(), 10, 20, "12:45", "call mom", true)
	require.NoError(t, err)

	settle()
	clk.Add(45 * time.Minute)

	require.Eventually(t, func() bool {
		dm, ch := msgr.sentCounts()
		return dm == 1 && ch == 0 && !store.has(rem.ID)
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(10), msgr.direct[0].to)
}

func TestWorkerSleepsInChunks(t *testing.T) {
	svc, _, msgr, clk := newTestService(t, Config{MaxChunk: time.Hour})

	_, err := svc.Create(context.Background(), 10, 20, "2026-03-14 14:30", "late", false)
	require.NoError(t, err)

	// Two full chunks pass without delivery.
	for i := 0; i < 2; i++ {
		settle()
		clk.Add(time.Hour)
		settle()
		_, ch := msgr.sentCounts()
		require.Zero(t, ch, "delivered %d chunks early", 2-i)
		require.Equal(t, 1, svc.Pending())
	}

	// The final partial chunk delivers.
	clk.Add(30 * time.Minute)
	require.Eventually(t, func() bool {
		_, ch := msgr.sentCounts()
		return ch == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateThenListRoundTrip(t *testing.T) {
	svc, _, _, _ := newTestService(t, Config{})

	rem, err := svc.Create(context.Background(), 42, 20, "2099-01-01 00:00", "standup", true)
	require.NoError(t, err)

	rems, err := svc.List(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	require.Equal(t, rem.ID, rems[0].ID)
	require.Equal(t, "standup", rems[0].Message)
	require.True(t, rems[0].FireAt.Equal(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, rems[0].DM)

	// Another owner sees nothing.
	rems, err = svc.List(context.Background(), 43)
	require.NoError(t, err)
	require.Empty(t, rems)
}

func TestCancelBetweenSleepChunks(t *testing.T) {
	svc, store, msgr, clk := newTestService(t, Config{MaxChunk: time.Hour})

	rem, err := svc.Create(context.Background(), 10, 20, "2026-03-14 14:00", "two chunks away", false)
	require.NoError(t, err)

	// One chunk in, still pending.
	settle()
	clk.Add(time.Hour)
	settle()
	require.Equal(t, 1, svc.Pending())

	ok, err := svc.Cancel(context.Background(), 10, rem.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Eventually(t, func() bool { return svc.Pending() == 0 }, time.Second, 10*time.Millisecond)

	// The remaining chunk elapsing delivers nothing.
	clk.Add(2 * time.Hour)
	settle()
	dm, ch := msgr.sentCounts()
	require.Zero(t, dm+ch)
	require.False(t, store.has(rem.ID))
}

func TestDailyLimit(t *testing.T) {
	svc, _, _, _ := newTestService(t, Config{})

	_, err := svc.Create(context.Background(), 10, 20, "2026-03-14 14:00", "first", false)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), 10, 20, "2026-03-14 16:00", "second", false)
	require.ErrorIs(t, err, ErrDailyLimit)

	// A different owner is unaffected.
	_, err = svc.Create(context.Background(), 11, 20, "2026-03-14 16:00", "other owner", false)
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	svc, store, msgr, clk := newTestService(t, Config{})

	rem, err := svc.Create(context.Background(), 10, 20, "2026-03-14 13:00", "nope", false)
	require.NoError(t, err)

	ok, err := svc.Cancel(context.Background(), 10, rem.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, store.has(rem.ID))
	require.Eventually(t, func() bool { return svc.Pending() == 0 }, time.Second, 10*time.Millisecond)

	// Second cancel is a miss, not an error.
	ok, err = svc.Cancel(context.Background(), 10, rem.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// The fire instant passing delivers nothing.
	settle()
	clk.Add(2 * time.Hour)
	settle()
	dm, ch := msgr.sentCounts()
	require.Zero(t, dm+ch)
}

func TestCancelIsOwnerScoped(t *testing.T) {
	svc, store, _, _ := newTestService(t, Config{})

	rem, err := svc.Create(context.Background(), 10, 20, "2026-03-14 13:00", "mine", false)
	require.NoError(t, err)

	ok, err := svc.Cancel(context.Background(), 999, rem.ID)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, store.has(rem.ID))
	require.Equal(t, 1, svc.Pending())
}

func TestReconcile(t *testing.T) {
	svc, store, msgr, clk := newTestService(t, Config{})

	for i := 0; i < 3; i++ {
		store.put(storage.Reminder{
			OwnerID:   int64(10 + i),
			ChannelID: 20,
			Message:   "persisted",
			FireAt:    testBase.Add(time.Duration(i+1) * time.Hour),
		})
	}

	require.NoError(t, svc.Reconcile(context.Background()))
	require.Equal(t, 3, svc.Pending())

	// A repeat reconciliation never doubles workers.
	require.NoError(t, svc.Reconcile(context.Background()))
	require.Equal(t, 3, svc.Pending())

	settle()
	clk.Add(time.Hour)
	require.Eventually(t, func() bool {
		_, ch := msgr.sentCounts()
		return ch == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconcileRetriesAfterLoadError(t *testing.T) {
	svc, store, _, _ := newTestService(t, Config{})

	store.mu.Lock()
	store.listErr = errors.New("disk on fire")
	store.mu.Unlock()
	require.Error(t, svc.Reconcile(context.Background()))

	store.mu.Lock()
	store.listErr = nil
	store.rows[1] = storage.Reminder{ID: 1, OwnerID: 10, ChannelID: 20, FireAt: testBase.Add(time.Hour)}
	store.mu.Unlock()

	require.NoError(t, svc.Reconcile(context.Background()))
	require.Equal(t, 1, svc.Pending())
}

func TestScheduleSameIDTwice(t *testing.T) {
	svc, store, _, _ := newTestService(t, Config{})

	rem := store.put(storage.Reminder{OwnerID: 10, ChannelID: 20, FireAt: testBase.Add(time.Hour)})
	require.True(t, svc.schedule(rem))
	require.False(t, svc.schedule(rem))
	require.Equal(t, 1, svc.Pending())
}

func TestWakeWithRowGone(t *testing.T) {
	svc, store, msgr, _ := newTestService(t, Config{})

	// Not in the store at all; the worker wakes immediately and finds nothing.
	require.True(t, svc.schedule(storage.Reminder{ID: 77, OwnerID: 10, ChannelID: 20, FireAt: testBase.Add(-time.Minute)}))

	require.Eventually(t, func() bool { return svc.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	dm, ch := msgr.sentCounts()
	require.Zero(t, dm+ch)
	require.False(t, store.has(77))
}

func TestNeverDeliverEarly(t *testing.T) {
	svc, store, msgr, _ := newTestService(t, Config{StaleSkew: 2 * time.Second})

	// The persisted row fires an hour from now, but the worker believes it is
	// already due. The re-fetch catches the mismatch and refuses delivery.
	rem := store.put(storage.Reminder{OwnerID: 10, ChannelID: 20, Message: "early", FireAt: testBase.Add(time.Hour)})
	stale := rem
	stale.FireAt = testBase

	require.True(t, svc.schedule(stale))
	require.Eventually(t, func() bool { return svc.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)

	dm, ch := msgr.sentCounts()
	require.Zero(t, dm+ch)
	require.True(t, store.has(rem.ID), "row must survive a refused early delivery")

	e, ok := store.lastAudit()
	require.True(t, ok)
	require.Equal(t, "stale", e.Action)
}

func TestDeliveryFailureStillConsumesRow(t *testing.T) {
	svc, store, msgr, clk := newTestService(t, Config{})
	msgr.err = errors.New("telegram down")

	rem, err := svc.Create(context.Background(), 10, 20, "2026-03-14 12:05", "x", false)
	require.NoError(t, err)

	settle()
	clk.Add(5 * time.Minute)

	require.Eventually(t, func() bool { return !store.has(rem.ID) }, 2*time.Second, 10*time.Millisecond)

	e, ok := store.lastAudit()
	require.True(t, ok)
	require.Equal(t, "delivered", e.Action)
	require.False(t, e.OK)
}

func TestStopLeavesRowsForNextStart(t *testing.T) {
	store := newMemStore()
	msgr := &memMessenger{}
	clk := clock.NewMock()
	clk.Set(testBase)

	svc := New(Config{}, store, msgr, clk, logx.Nop())
	svc.Start(context.Background())

	rem, err := svc.Create(context.Background(), 10, 20, "2026-03-15 09:00", "survive restarts", false)
	require.NoError(t, err)
	require.Equal(t, 1, svc.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)

	require.Equal(t, 0, svc.Pending())
	require.True(t, store.has(rem.ID))
	dm, ch := msgr.sentCounts()
	require.Zero(t, dm+ch)
}
