package sync

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypact/backend/internal/catalog"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/unlock"
)

func init() {
	logger.InitializeForTests()
}

// fakeRemote is an in-memory server. Pushes are recorded; fetches return
// whatever the test staged.
type fakeRemote struct {
	mu gosync.Mutex

	progress []models.ProgressRecord
	gated    []models.GatedContent
	open     []models.OpenContent

	pushedHours    map[string][]float64
	pushedMessages map[string]string
	pushedDiaries  map[string]string
	pushCount      int
	failPush       bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pushedHours:    map[string][]float64{},
		pushedMessages: map[string]string{},
		pushedDiaries:  map[string]string{},
	}
}

func (f *fakeRemote) FetchProgress(ctx context.Context, from string) ([]models.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ProgressRecord(nil), f.progress...), nil
}

func (f *fakeRemote) FetchGated(ctx context.Context, from string) ([]models.GatedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.GatedContent(nil), f.gated...), nil
}

func (f *fakeRemote) FetchOpen(ctx context.Context, from string) ([]models.OpenContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OpenContent(nil), f.open...), nil
}

func (f *fakeRemote) PushProgress(ctx context.Context, date string, hours []float64) (*models.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPush {
		return nil, fmt.Errorf("fake push failure")
	}
	f.pushCount++
	f.pushedHours[date] = append([]float64(nil), hours...)
	return &models.ProgressRecord{Date: date, Hours: hours}, nil
}

func (f *fakeRemote) PushGated(ctx context.Context, date, message string) (*models.GatedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPush {
		return nil, fmt.Errorf("fake push failure")
	}
	f.pushCount++
	f.pushedMessages[date] = message
	return &models.GatedContent{Date: date, Message: message}, nil
}

func (f *fakeRemote) PushOpen(ctx context.Context, date string, notes []string, diary string) (*models.OpenContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPush {
		return nil, fmt.Errorf("fake push failure")
	}
	f.pushCount++
	f.pushedDiaries[date] = diary
	return &models.OpenContent{Date: date, DiaryText: diary}, nil
}

func (f *fakeRemote) setFailPush(fail bool) {
	f.mu.Lock()
	f.failPush = fail
	f.mu.Unlock()
}

func (f *fakeRemote) pushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushCount
}

func (f *fakeRemote) hoursFor(date string) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushedHours[date]
}

func (f *fakeRemote) messageFor(date string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushedMessages[date]
}

// fakeRealtime delivers events the test fires into Subscribe callbacks.
type fakeRealtime struct {
	events chan ChangeEvent
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{events: make(chan ChangeEvent, 8)}
}

func (f *fakeRealtime) Subscribe(ctx context.Context, onEvent func(ChangeEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.events:
			onEvent(ev)
		}
	}
}

func testConfig(t *testing.T) Config {
	return Config{
		UserID:     "writer-1",
		CoupleID:   "couple-1",
		Role:       unlock.RoleWriter,
		CachePath:  filepath.Join(t.TempDir(), "days.json"),
		FlushDelay: 20 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, remote Remote) *Engine {
	e, err := NewEngine(testConfig(t), remote, nil)
	require.NoError(t, err)
	return e
}

func TestNewEngineValidation(t *testing.T) {
	remote := newFakeRemote()

	_, err := NewEngine(Config{CoupleID: "c", Role: unlock.RoleWriter}, remote, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{UserID: "u", Role: unlock.RoleWriter}, remote, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{UserID: "u", CoupleID: "c", Role: "admin"}, remote, nil)
	assert.Error(t, err)
}

func TestSetHoursOptimisticSnapshot(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	defer e.Close()

	hours := make([]float64, catalog.Len())
	hours[0] = 150 // clamped
	hours[1] = 4
	e.SetHours("2026-08-01", hours)

	d := e.Day("2026-08-01")
	require.NotNil(t, d)
	require.NotNil(t, d.MineProgress)
	assert.Equal(t, 99.0, d.MineProgress.Hours[0])
	assert.Equal(t, 103.0, d.MineProgress.TotalHours)
	assert.True(t, d.MineProgress.Unlocked, "snapshot evaluated locally before the server answers")
	assert.True(t, e.HasPending())

	assert.Equal(t, 0.0, e.HoursRemaining("2026-08-01"))
	assert.InDelta(t, unlock.Threshold*catalog.TotalTarget(), e.HoursRemaining("2026-08-02"), 1e-9)
}

func TestDebouncedFlushCoalescesEdits(t *testing.T) {
	remote := newFakeRemote()
	e := newTestEngine(t, remote)
	defer e.Close()

	// Three rapid edits inside the debounce window push once.
	for i := 1; i <= 3; i++ {
		hours := make([]float64, catalog.Len())
		hours[0] = float64(i)
		e.SetHours("2026-08-01", hours)
	}

	assert.Eventually(t, func() bool {
		return !e.HasPending()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, remote.pushes())
	require.Len(t, remote.hoursFor("2026-08-01"), catalog.Len())
	assert.Equal(t, 3.0, remote.hoursFor("2026-08-01")[0], "last edit wins")
}

func TestFlushBypassesDebounce(t *testing.T) {
	remote := newFakeRemote()
	cfg := testConfig(t)
	cfg.FlushDelay = time.Hour
	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)
	defer e.Close()

	e.SetGatedMessage("2026-08-01", "almost there")
	require.NoError(t, e.Flush(context.Background()))

	assert.False(t, e.HasPending())
	assert.Equal(t, "almost there", remote.messageFor("2026-08-01"))
}

func TestFlushHonorsCallerContext(t *testing.T) {
	remote := newFakeRemote()
	cfg := testConfig(t)
	cfg.FlushDelay = time.Hour
	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)

	e.SetGatedMessage("2026-08-01", "almost there")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, e.Flush(ctx))
	assert.True(t, e.HasPending(), "canceled flush keeps the edit pending")
	assert.Equal(t, 0, remote.pushes())

	require.NoError(t, e.Close())
	assert.Equal(t, "almost there", remote.messageFor("2026-08-01"))
}

func TestFlushFailureKeepsDirty(t *testing.T) {
	remote := newFakeRemote()
	cfg := testConfig(t)
	cfg.FlushDelay = time.Hour
	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)

	var flushErrs int
	var mu gosync.Mutex
	e.SetOnFlushError(func(error) {
		mu.Lock()
		flushErrs++
		mu.Unlock()
	})

	remote.setFailPush(true)
	e.SetHours("2026-08-01", make([]float64, catalog.Len()))

	err = e.Flush(context.Background())
	assert.Error(t, err)
	assert.True(t, e.HasPending(), "failed pushes stay pending")
	mu.Lock()
	assert.Equal(t, 1, flushErrs)
	mu.Unlock()

	remote.setFailPush(false)
	require.NoError(t, e.Flush(context.Background()))
	assert.False(t, e.HasPending())
	require.NoError(t, e.Close())
}

func TestRefreshRebuildsFromServer(t *testing.T) {
	remote := newFakeRemote()
	remote.progress = []models.ProgressRecord{
		{UserID: "writer-1", CoupleID: "couple-1", Date: "2026-08-01", TotalHours: 8, Unlocked: true},
		{UserID: "supporter-1", CoupleID: "couple-1", Date: "2026-08-01", TotalHours: 2},
	}
	remote.gated = []models.GatedContent{
		{AuthorID: "supporter-1", CoupleID: "couple-1", Date: "2026-08-01", Message: "proud of you"},
	}
	remote.open = []models.OpenContent{
		{AuthorID: "writer-1", CoupleID: "couple-1", Date: "2026-08-01", DiaryText: "good day"},
	}

	e := newTestEngine(t, remote)
	defer e.Close()

	require.NoError(t, e.Refresh(context.Background()))

	d := e.Day("2026-08-01")
	require.NotNil(t, d)
	require.NotNil(t, d.MineProgress)
	assert.True(t, d.MineProgress.Unlocked)
	require.NotNil(t, d.TheirsProgress)
	require.NotNil(t, d.TheirsGated)
	assert.Equal(t, "proud of you", d.TheirsGated.Message)
	require.NotNil(t, d.MineOpen)
	assert.Nil(t, d.MineGated)
}

func TestRefreshDropsHiddenPartnerRows(t *testing.T) {
	remote := newFakeRemote()
	remote.gated = []models.GatedContent{
		{AuthorID: "supporter-1", CoupleID: "couple-1", Date: "2026-08-01", Message: "visible"},
	}

	e := newTestEngine(t, remote)
	defer e.Close()

	require.NoError(t, e.Refresh(context.Background()))
	require.NotNil(t, e.Day("2026-08-01").TheirsGated)

	// The server decides visibility: when it stops returning the row, the
	// local copy goes too.
	remote.mu.Lock()
	remote.gated = nil
	remote.mu.Unlock()

	require.NoError(t, e.Refresh(context.Background()))
	d := e.Day("2026-08-01")
	if d != nil {
		assert.Nil(t, d.TheirsGated)
	}
}

func TestRefreshSkipsUnknownAuthors(t *testing.T) {
	remote := newFakeRemote()
	remote.gated = []models.GatedContent{
		{AuthorID: "supporter-1", CoupleID: "couple-1", Date: "2026-08-01", Message: "from partner"},
		{AuthorID: "intruder-9", CoupleID: "couple-1", Date: "2026-08-01", Message: "corrupt row"},
	}

	cfg := testConfig(t)
	cfg.PartnerID = "supporter-1"
	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Refresh(context.Background()))

	d := e.Day("2026-08-01")
	require.NotNil(t, d)
	require.NotNil(t, d.TheirsGated)
	assert.Equal(t, "from partner", d.TheirsGated.Message)
}

func TestRefreshKeepsUnflushedEdits(t *testing.T) {
	remote := newFakeRemote()
	remote.gated = []models.GatedContent{
		{AuthorID: "writer-1", CoupleID: "couple-1", Date: "2026-08-01", Message: "server copy"},
	}

	cfg := testConfig(t)
	cfg.FlushDelay = time.Hour // keep the edit dirty for the whole test
	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)

	e.SetGatedMessage("2026-08-01", "local edit")
	require.NoError(t, e.Refresh(context.Background()))

	d := e.Day("2026-08-01")
	require.NotNil(t, d.MineGated)
	assert.Equal(t, "local edit", d.MineGated.Message, "dirty field survives a refresh")

	// Once flushed, the server copy wins again.
	require.NoError(t, e.Flush(context.Background()))
	remote.mu.Lock()
	remote.gated[0].Message = "local edit"
	remote.mu.Unlock()

	require.NoError(t, e.Refresh(context.Background()))
	assert.Equal(t, "local edit", e.Day("2026-08-01").MineGated.Message)
	require.NoError(t, e.Close())
}

func TestCacheRoundTrip(t *testing.T) {
	remote := newFakeRemote()
	cfg := testConfig(t)

	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)
	e.SetOpenDiary("2026-08-01", "persisted entry")
	require.NoError(t, e.Close())

	// A new engine on the same cache file hydrates the same state.
	e2, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)
	defer e2.Close()

	d := e2.Day("2026-08-01")
	require.NotNil(t, d)
	require.NotNil(t, d.MineOpen)
	assert.Equal(t, "persisted entry", d.MineOpen.DiaryText)
}

func TestCacheRejectsOtherUser(t *testing.T) {
	remote := newFakeRemote()
	cfg := testConfig(t)

	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)
	e.SetOpenDiary("2026-08-01", "private entry")
	require.NoError(t, e.Close())

	// Same file, different account: the cache must read as empty.
	other := cfg
	other.UserID = "supporter-1"
	other.Role = unlock.RoleSupporter

	e2, err := NewEngine(other, remote, nil)
	require.NoError(t, err)
	defer e2.Close()

	assert.Nil(t, e2.Day("2026-08-01"))
}

func TestCloseFlushesPendingEdits(t *testing.T) {
	remote := newFakeRemote()
	cfg := testConfig(t)
	cfg.FlushDelay = time.Hour

	e, err := NewEngine(cfg, remote, nil)
	require.NoError(t, err)

	e.SetGatedMessage("2026-08-01", "goodnight")
	require.NoError(t, e.Close())

	assert.Equal(t, "goodnight", remote.messageFor("2026-08-01"))
}

func TestRealtimeEventTriggersRefresh(t *testing.T) {
	remote := newFakeRemote()
	realtime := newFakeRealtime()

	cfg := testConfig(t)
	e, err := NewEngine(cfg, remote, realtime)
	require.NoError(t, err)
	defer e.Close()

	e.Start()

	remote.mu.Lock()
	remote.gated = []models.GatedContent{
		{AuthorID: "supporter-1", CoupleID: "couple-1", Date: "2026-08-01", Message: "fresh from server"},
	}
	remote.mu.Unlock()

	realtime.events <- ChangeEvent{
		Type:     "gated_changed",
		Table:    "gated_content",
		CoupleID: "couple-1",
		AuthorID: "supporter-1",
		Date:     "2026-08-01",
	}

	assert.Eventually(t, func() bool {
		d := e.Day("2026-08-01")
		return d != nil && d.TheirsGated != nil && d.TheirsGated.Message == "fresh from server"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeIgnoresOtherCouples(t *testing.T) {
	remote := newFakeRemote()
	realtime := newFakeRealtime()

	e, err := NewEngine(testConfig(t), remote, realtime)
	require.NoError(t, err)
	defer e.Close()

	e.Start()

	remote.mu.Lock()
	remote.gated = []models.GatedContent{
		{AuthorID: "supporter-1", CoupleID: "couple-1", Date: "2026-08-01", Message: "should not appear"},
	}
	remote.mu.Unlock()

	realtime.events <- ChangeEvent{CoupleID: "couple-other", Date: "2026-08-01"}

	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, e.Day("2026-08-01"))
}
