package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sweetexp/internal/achievement"
	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
	"sweetexp/internal/notification"
	"sweetexp/internal/store"
	"sweetexp/internal/testsupport"
	"sweetexp/internal/watch"
)

type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }

func (r fixedRand) IntN(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

type recordingDeliverer struct {
	mu   sync.Mutex
	got  []notification.Notification
	errs []error
}

func (d *recordingDeliverer) Deliver(_ context.Context, n notification.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return err
		}
	}
	d.got = append(d.got, n)
	return nil
}

func (d *recordingDeliverer) delivered() []notification.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notification.Notification(nil), d.got...)
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Save(context.Context, []achievement.Achievement) error {
	return errors.New("disk full")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestState(t *testing.T, capacity int) *State {
	t.Helper()
	s := NewState(capacity)
	s.Replace(achievement.Defaults())
	return s
}

func TestEvaluateUnlocksExactlyOnce(t *testing.T) {
	state := newTestState(t, 10)
	mem := store.NewMemory(nil)
	var auditBuf bytes.Buffer
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ev := NewEvaluator(state, mem, logging.NewAudit(&auditBuf, clock.Now), clock, logging.NewNop())
	ev.AddSource(CounterBoot, CounterFunc(func() int { return 10 }))

	unlocked := ev.Evaluate(context.Background())
	require.Len(t, unlocked, 1)
	assert.Equal(t, achievement.BootMaster, unlocked[0].ID)

	again := ev.Evaluate(context.Background())
	assert.Empty(t, again)

	a, ok := state.Achievement(achievement.BootMaster)
	require.True(t, ok)
	assert.True(t, a.Unlocked)
	assert.Equal(t, clock.Now().UTC(), a.UnlockTime)
	assert.Equal(t, 10, a.Progress)

	assert.Equal(t, 1, state.QueueLen())
	n, ok := state.Pop()
	require.True(t, ok)
	assert.Equal(t, notification.CategoryAchievement, n.Category)
	assert.Equal(t, notification.PriorityAchievement, n.Priority)
	assert.Equal(t, "🏆 Achievement Unlocked: Boot Master!\nBoot 10 times successfully", n.Message)

	assert.Equal(t, 1, mem.Saves())
	assert.Equal(t, 1, strings.Count(auditBuf.String(), "Achievement unlocked"))

	saved, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, saved[0].Unlocked)
}

func TestEvaluateRecordsProgressAndSkipsUnbound(t *testing.T) {
	state := newTestState(t, 10)
	require.Equal(t, 0, state.Replace(append(achievement.Defaults(), achievement.Achievement{ID: "mystery", Name: "Mystery", Target: 1})))

	ev := NewEvaluator(state, store.NewMemory(nil), nil, clockwork.NewFakeClock(), nil)
	ev.AddSource(CounterBoot, CounterFunc(func() int { return 4 }))
	ev.AddSource(CounterActivity, CounterFunc(func() int { return 900 }))

	unlocked := ev.Evaluate(context.Background())
	require.Len(t, unlocked, 1)
	assert.Equal(t, achievement.ActivityPro, unlocked[0].ID)

	boot, _ := state.Achievement(achievement.BootMaster)
	assert.Equal(t, 4, boot.Progress)
	assert.False(t, boot.Unlocked)

	activity, _ := state.Achievement(achievement.ActivityPro)
	assert.Equal(t, 500, activity.Progress, "progress is clamped to the target")

	mystery, _ := state.Achievement("mystery")
	assert.False(t, mystery.Unlocked)
	assert.Equal(t, 0, mystery.Progress)

	ev.Bind("mystery", CounterBoot)
	unlocked = ev.Evaluate(context.Background())
	require.Len(t, unlocked, 1)
	assert.Equal(t, "mystery", unlocked[0].ID)
}

func TestEvaluationCounterUnlocksOnTenthPass(t *testing.T) {
	state := newTestState(t, 10)
	ev := NewEvaluator(state, store.NewMemory(nil), nil, clockwork.NewFakeClock(), nil)
	ev.AddSource(CounterBoot, &EvaluationCounter{})

	for i := 1; i < 10; i++ {
		require.Empty(t, ev.Evaluate(context.Background()), "pass %d", i)
	}
	unlocked := ev.Evaluate(context.Background())
	require.Len(t, unlocked, 1)
	assert.Equal(t, achievement.BootMaster, unlocked[0].ID)
}

func TestEvaluateSaveFailureIsLoggedAndSwallowed(t *testing.T) {
	state := newTestState(t, 10)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	ev := NewEvaluator(state, failingStore{store.NewMemory(nil)}, nil, clockwork.NewFakeClock(), logger)
	ev.AddSource(CounterBoot, CounterFunc(func() int { return 99 }))

	unlocked := ev.Evaluate(context.Background())
	require.Len(t, unlocked, 1)
	assert.Equal(t, 1, state.QueueLen())
	assert.Contains(t, logs.String(), "store_save_failed")
	assert.Contains(t, logs.String(), "disk full")
}

func TestDispatcherDeliversOnePerTickInOrder(t *testing.T) {
	state := newTestState(t, 10)
	for i := 0; i < 3; i++ {
		require.True(t, state.Enqueue(notification.New(notification.CategorySystem, fmt.Sprintf("msg %d", i), time.Now())))
	}
	d := &recordingDeliverer{}
	disp := NewDispatcher(state, d, fixedRand{f: 0.99}, 0.05, clockwork.NewFakeClock(), nil)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, disp.Tick(context.Background()))
		assert.Equal(t, 2-i, state.QueueLen())
	}
	assert.Equal(t, 0, disp.Tick(context.Background()), "empty queue and no ambient roll")

	got := d.delivered()
	require.Len(t, got, 3)
	for i, n := range got {
		assert.Equal(t, fmt.Sprintf("msg %d", i), n.Message)
	}
}

func TestDispatcherDropsOnDeliveryFailure(t *testing.T) {
	state := newTestState(t, 10)
	first := notification.New(notification.CategorySystem, "first", time.Now())
	second := notification.New(notification.CategorySystem, "second", time.Now())
	require.True(t, state.Enqueue(first))
	require.True(t, state.Enqueue(second))

	var logs bytes.Buffer
	d := &recordingDeliverer{errs: []error{fmt.Errorf("dial: %w", ipc.ErrNoConsumer)}}
	disp := NewDispatcher(state, d, fixedRand{f: 1}, 0.05, clockwork.NewFakeClock(), slog.New(slog.NewTextHandler(&logs, nil)))

	assert.Equal(t, 0, disp.Tick(context.Background()))
	assert.Equal(t, 1, state.QueueLen(), "failed notification must not be requeued")
	assert.Contains(t, logs.String(), "notification_delivery_failed")
	assert.Contains(t, logs.String(), first.ID)

	assert.Equal(t, 1, disp.Tick(context.Background()))
	got := d.delivered()
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Message)
}

func TestDispatcherAmbientBypassesQueue(t *testing.T) {
	state := newTestState(t, 10)
	queued := notification.New(notification.CategorySystem, "queued", time.Now())
	require.True(t, state.Enqueue(queued))

	d := &recordingDeliverer{}
	disp := NewDispatcher(state, d, fixedRand{f: 0.01, n: 3}, 0.05, clockwork.NewFakeClock(), nil)

	assert.Equal(t, 2, disp.Tick(context.Background()))
	got := d.delivered()
	require.Len(t, got, 2)
	assert.Equal(t, "queued", got[0].Message)
	assert.Equal(t, notification.CategoryAmbient, got[1].Category)
	assert.Equal(t, notification.PriorityAmbient, got[1].Priority)
	assert.Equal(t, "Achievement streak active", got[1].Message)
	assert.Equal(t, 0, state.QueueLen())
}

func TestActivityWorkerMilestones(t *testing.T) {
	state := newTestState(t, 10)
	w := NewActivityWorker(state, fixedRand{n: 9}, 50, clockwork.NewFakeClock(), nil)

	for i := 0; i < 5; i++ {
		w.Step()
	}
	assert.Equal(t, 45, w.Counter())
	assert.Equal(t, 0, state.QueueLen())

	assert.Equal(t, 54, w.Step())
	require.Equal(t, 1, state.QueueLen())
	n, _ := state.Pop()
	assert.Equal(t, notification.CategorySystem, n.Category)
	assert.Equal(t, notification.PrioritySystem, n.Priority)
	assert.Equal(t, "Compositor events: 54 processed", n.Message)

	w.Seed(20)
	assert.Equal(t, 54, w.Counter(), "seed never lowers the counter")
}

func TestQueueFullDropsNewest(t *testing.T) {
	state := newTestState(t, 2)
	w := NewActivityWorker(state, fixedRand{n: 9}, 5, clockwork.NewFakeClock(), nil)
	for i := 0; i < 3; i++ {
		w.Step()
	}
	assert.Equal(t, 2, state.QueueLen())

	n, _ := state.Pop()
	assert.Equal(t, "Compositor events: 9 processed", n.Message)
	n, _ = state.Pop()
	assert.Equal(t, "Compositor events: 18 processed", n.Message)
	_, ok := state.Pop()
	assert.False(t, ok)
}

func TestChangeWatcherEvaluatesOnSignal(t *testing.T) {
	state := newTestState(t, 10)
	state.SetEnabled(true)
	ev := NewEvaluator(state, store.NewMemory(nil), nil, clockwork.NewFakeClock(), nil)
	boot := &EvaluationCounter{}
	boot.Seed(9)
	ev.AddSource(CounterBoot, boot)

	signal := watch.NewManual()
	w := NewChangeWatcher(state, signal, ev, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	signal.Trigger()
	require.Eventually(t, func() bool {
		a, _ := state.Achievement(achievement.BootMaster)
		return a.Unlocked
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("change watcher did not exit on cancel")
	}
}

func TestEngineEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAmbientProbability(0))
	require.NoError(t, cfg.EnsureDirectories())
	st := testsupport.MustOpenStore(t, cfg)

	audit, err := logging.OpenAudit(cfg.AuditLogPath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	d := &recordingDeliverer{}
	eng, err := New(cfg, Deps{
		Store:     st,
		Deliverer: d,
		Audit:     audit,
		Clock:     clockwork.NewFakeClock(),
		Rand:      func() Rand { return fixedRand{f: 1} },
	})
	require.NoError(t, err)
	eng.Load(context.Background())
	require.Len(t, eng.Status().Achievements, 2)

	for i := 0; i < 10; i++ {
		eng.Evaluate(context.Background())
	}
	eng.dispatcher.Tick(context.Background())

	got := d.delivered()
	require.Len(t, got, 1)
	assert.Equal(t, notification.CategoryAchievement, got[0].Category)
	assert.Contains(t, got[0].Message, "Boot Master")

	data, err := os.ReadFile(cfg.AuditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Achievement unlocked achievement_id=boot_master")

	reloaded, err := store.NewText(cfg.StorePath(), nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	assert.True(t, reloaded[0].Unlocked)
	assert.False(t, reloaded[0].UnlockTime.IsZero())
}

func TestEngineWorkersRunOnFakeClock(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAmbientProbability(0))
	clock := clockwork.NewFakeClock()
	mem := store.NewMemory(nil)
	auditOut := &lockedBuffer{}

	eng, err := New(cfg, Deps{
		Store:     mem,
		Deliverer: &recordingDeliverer{},
		Audit:     logging.NewAudit(auditOut, clock.Now),
		Clock:     clock,
		Rand:      func() Rand { return fixedRand{f: 1, n: 9} },
	})
	require.NoError(t, err)
	eng.Load(context.Background())

	eng.Start(context.Background())
	eng.Start(context.Background())
	assert.True(t, eng.Running())

	clock.BlockUntil(3)
	clock.Advance(cfg.EvaluateEvery())

	require.Eventually(t, func() bool {
		a, _ := eng.state.Achievement(achievement.BootMaster)
		return a.Progress >= 1 && eng.activity.Counter() >= 9
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.Stop(context.Background()))
	assert.False(t, eng.Running())
	assert.False(t, eng.Status().Enabled)
	assert.Equal(t, 1, mem.Saves(), "stop performs the final save")
	assert.Contains(t, auditOut.String(), "Engine started")
	assert.Contains(t, auditOut.String(), "Engine stopped")
	require.NoError(t, eng.Stop(context.Background()), "stop is idempotent")

	eng.Start(context.Background())
	assert.True(t, eng.Running())
	require.NoError(t, eng.Stop(context.Background()))
	assert.Equal(t, 2, strings.Count(auditOut.String(), "Engine started"))
}

func TestEngineLoadSeedsWhenStoreUnreadable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, cfg.StorePath(), "GARBAGE\n")
	var logs bytes.Buffer

	eng, err := New(cfg, Deps{
		Store:     store.NewText(cfg.StorePath(), nil),
		Deliverer: &recordingDeliverer{},
		Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
		Seed:      []achievement.Achievement{{ID: "night_owl", Name: "Night Owl", Target: 3}},
	})
	require.NoError(t, err)
	eng.Load(context.Background())

	snap := eng.Status().Achievements
	require.Len(t, snap, 1)
	assert.Equal(t, "night_owl", snap[0].ID)
	assert.Contains(t, logs.String(), "store_load_failed")
}

func TestEngineLoadResumesCounters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	list := achievement.Defaults()
	list[0].Progress = 9
	list[1].Progress = 120

	eng, err := New(cfg, Deps{
		Store:     store.NewMemory(list),
		Deliverer: &recordingDeliverer{},
		Rand:      func() Rand { return fixedRand{f: 1} },
	})
	require.NoError(t, err)
	eng.Load(context.Background())
	assert.Equal(t, 120, eng.activity.Counter())

	unlocked := eng.Evaluate(context.Background())
	require.Len(t, unlocked, 1)
	assert.Equal(t, achievement.BootMaster, unlocked[0].ID)
}

func TestEngineNotify(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithQueueCapacity(1))
	eng, err := New(cfg, Deps{Store: store.NewMemory(nil), Deliverer: &recordingDeliverer{}})
	require.NoError(t, err)

	_, err = eng.Notify(notification.CategorySystem, "  ")
	assert.Error(t, err)
	_, err = eng.Notify("bogus", "hi")
	assert.Error(t, err)

	n, err := eng.Notify(notification.CategorySystem, "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	_, err = eng.Notify(notification.CategorySystem, "again")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := New(cfg, Deps{Deliverer: &recordingDeliverer{}})
	assert.Error(t, err)
	_, err = New(cfg, Deps{Store: store.NewMemory(nil)})
	assert.Error(t, err)
	_, err = New(nil, Deps{})
	assert.Error(t, err)
}

func TestStoreFileIsWrittenUnderDataDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, "data", "sweetexp_enginedata.dat"), cfg.StorePath())
}
