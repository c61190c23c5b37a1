package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sweetexp/internal/config"
	"sweetexp/internal/daemon"
	"sweetexp/internal/ipc"
	"sweetexp/internal/notification"
	"sweetexp/internal/testsupport"
)

type recordingDeliverer struct {
	mu  sync.Mutex
	got []notification.Notification
}

func (r *recordingDeliverer) Deliver(_ context.Context, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func newDaemon(t *testing.T, cfg *config.Config, configPath string) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, configPath, nil,
		daemon.WithDeliverer(&recordingDeliverer{}),
		daemon.WithClock(clockwork.NewFakeClock()),
		daemon.WithSessionID("session-1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	testsupport.WriteFile(t, path, body)
}

func TestLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first := newDaemon(t, cfg, "")
	require.NoError(t, first.Lock(ctx))

	second := newDaemon(t, cfg, "")
	require.ErrorIs(t, second.Lock(ctx), daemon.ErrAlreadyRunning)

	require.NoError(t, first.Close())
	require.NoError(t, second.Lock(ctx))
}

func TestStartRequiresLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, "")
	require.Error(t, d.Start(context.Background()))
	assert.False(t, d.Running())
}

func TestReloadFollowsEnableSwitch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	ctx := context.Background()

	d := newDaemon(t, cfg, configPath)
	require.NoError(t, d.Lock(ctx))

	writeConfig(t, configPath, "[engine]\nenabled = true\n")
	assert.True(t, d.Reload(ctx))
	assert.True(t, d.Running())

	writeConfig(t, configPath, "[engine]\nenabled = false\n")
	assert.False(t, d.Reload(ctx))
	assert.False(t, d.Running())

	writeConfig(t, configPath, "[engine]\nenabled = true\n")
	require.True(t, d.Reload(ctx))

	writeConfig(t, configPath, "[engine\nenabled = true\n")
	assert.False(t, d.Reload(ctx), "invalid config must read as disabled")
	assert.False(t, d.Running())

	require.NoError(t, os.Remove(configPath))
	assert.False(t, d.Reload(ctx))
}

func TestStopSavesCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	d := newDaemon(t, cfg, "")
	require.NoError(t, d.Lock(ctx))
	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Stop(ctx))

	data, err := os.ReadFile(cfg.StorePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "ACH:boot_master|")

	audit, err := os.ReadFile(cfg.AuditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(audit), "Engine started")
	assert.Contains(t, string(audit), "Engine stopped")
}

func TestWatchConfigAppliesChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, configPath, "[engine]\nenabled = false\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newDaemon(t, cfg, configPath)
	require.NoError(t, d.Lock(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.WatchConfig(ctx)
	}()

	require.Eventually(t, func() bool {
		writeConfig(t, configPath, "[engine]\nenabled = true\n")
		return d.Running()
	}, 5*time.Second, 100*time.Millisecond)

	require.Eventually(t, func() bool {
		writeConfig(t, configPath, "[engine]\nenabled = false\n")
		return !d.Running()
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchConfig did not return after cancel")
	}
}

func TestStatusAndNotify(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithQueueCapacity(1))
	ctx := context.Background()

	d := newDaemon(t, cfg, "")
	require.NoError(t, d.Lock(ctx))

	resp, err := d.Notify(ctx, ipc.NotifyRequest{Category: "system", Message: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Queued)
	assert.NotEmpty(t, resp.ID)

	resp, err = d.Notify(ctx, ipc.NotifyRequest{Category: "", Message: "dropped"})
	require.NoError(t, err)
	assert.False(t, resp.Queued, "full queue drops the newest")

	_, err = d.Notify(ctx, ipc.NotifyRequest{Category: "bogus", Message: "x"})
	require.Error(t, err)

	status := d.Status(ctx)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, "session-1", status.SessionID)
	assert.Equal(t, cfg.LockPath(), status.LockPath)
	assert.Equal(t, cfg.StorePath(), status.StorePath)
	assert.Equal(t, 1, status.QueueLength)
	assert.Equal(t, 1, status.QueueCapacity)
	require.Len(t, status.Achievements, 2)
	ids := []string{status.Achievements[0].ID, status.Achievements[1].ID}
	assert.ElementsMatch(t, []string{"boot_master", "activity_pro"}, ids)
}

func TestSeedCatalogFallsBackOnInvalidFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSeedCatalog("achievements: []\n"))
	ctx := context.Background()

	d := newDaemon(t, cfg, "")
	require.NoError(t, d.Lock(ctx))
	assert.Len(t, d.Status(ctx).Achievements, 2)
}

func TestSeedCatalogUsedWhenStoreEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSeedCatalog(`achievements:
  - id: night_owl
    description: Stay up late
    target: 3
`))
	ctx := context.Background()

	d := newDaemon(t, cfg, "")
	require.NoError(t, d.Lock(ctx))
	status := d.Status(ctx)
	require.Len(t, status.Achievements, 1)
	assert.Equal(t, "night_owl", status.Achievements[0].ID)
	assert.Equal(t, "Night Owl", status.Achievements[0].Name)
}
