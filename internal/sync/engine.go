package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/studypact/backend/internal/catalog"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/repository"
	"github.com/studypact/backend/internal/unlock"
	"go.uber.org/zap"
)

const (
	// DefaultFlushDelay is how long the engine waits after the last local
	// edit before pushing a field to the server.
	DefaultFlushDelay = 600 * time.Millisecond

	// DefaultWindowDays is the history window the engine keeps in memory
	// and on disk.
	DefaultWindowDays = 30
)

// Config describes the local identity and tuning of a sync engine
type Config struct {
	UserID   string
	CoupleID string
	Role     unlock.Role

	// PartnerID, when known, lets Refresh reject rows authored by anyone
	// outside the couple as corruption. Empty means "trust the server's
	// couple scoping".
	PartnerID string

	// CachePath is the JSON file used to hydrate state between sessions
	CachePath string

	// FlushDelay overrides DefaultFlushDelay when positive
	FlushDelay time.Duration

	// WindowDays overrides DefaultWindowDays when positive
	WindowDays int
}

// Engine reconciles the local day cache against the server. All exported
// methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	remote   Remote
	realtime Realtime
	cache    *fileCache

	mu     gosync.Mutex
	days   map[string]*DayState
	dirty  map[fieldKey]int // generation counter per dirty field
	timers map[fieldKey]*time.Timer

	flushDelay time.Duration
	windowDays int

	onChange     func()
	onFlushError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// NewEngine creates an engine and hydrates its state from the cache file.
// realtime may be nil; the engine then only refreshes on demand.
func NewEngine(cfg Config, remote Remote, realtime Realtime) (*Engine, error) {
	if cfg.UserID == "" || cfg.CoupleID == "" {
		return nil, fmt.Errorf("sync: user and couple IDs are required")
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("sync: invalid role %q", cfg.Role)
	}

	flushDelay := cfg.FlushDelay
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		remote:     remote,
		realtime:   realtime,
		days:       map[string]*DayState{},
		dirty:      map[fieldKey]int{},
		timers:     map[fieldKey]*time.Timer{},
		flushDelay: flushDelay,
		windowDays: windowDays,
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.CachePath != "" {
		e.cache = newFileCache(cfg.CachePath)
		days, err := e.cache.Load(cfg.UserID)
		if err != nil {
			return nil, err
		}
		e.days = days
	}

	return e, nil
}

// SetOnChange registers a callback invoked after every state change. Used by
// UIs to re-render. Called without the engine lock held.
func (e *Engine) SetOnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// SetOnFlushError registers a callback invoked when a debounced push fails.
// The edit stays pending either way; UIs use this to show a "not saved yet"
// indicator.
func (e *Engine) SetOnFlushError(fn func(error)) {
	e.mu.Lock()
	e.onFlushError = fn
	e.mu.Unlock()
}

// Start begins the realtime subscription. Any change event triggers a full
// refresh; the engine never applies partial patches from the socket.
func (e *Engine) Start() {
	if e.realtime == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.realtime.Subscribe(e.ctx, func(event ChangeEvent) {
			if event.CoupleID != "" && event.CoupleID != e.cfg.CoupleID {
				return
			}
			if err := e.Refresh(e.ctx); err != nil && e.ctx.Err() == nil {
				logger.Log.Warn("refresh after push failed", zap.Error(err))
			}
		})
		if err != nil && e.ctx.Err() == nil {
			logger.Log.Error("realtime subscription ended", zap.Error(err))
		}
	}()
}

// knownAuthor reports whether a non-self author id belongs to the couple
func (e *Engine) knownAuthor(authorID string) bool {
	return e.cfg.PartnerID == "" || authorID == e.cfg.PartnerID
}

// windowStart returns the first date of the engine's history window
func (e *Engine) windowStart() string {
	return time.Now().AddDate(0, 0, -e.windowDays+1).Format(models.DateFormat)
}

// Refresh fetches the full window from the server and rebuilds local state.
// The three collections are fetched in parallel. Fields with unflushed local
// edits keep their local values; everything else, including which partner
// rows are visible at all, is taken from the server.
func (e *Engine) Refresh(ctx context.Context) error {
	from := e.windowStart()

	var (
		wg       gosync.WaitGroup
		progress []models.ProgressRecord
		gated    []models.GatedContent
		open     []models.OpenContent
		errP     error
		errG     error
		errO     error
	)

	wg.Add(3)
	go func() { defer wg.Done(); progress, errP = e.remote.FetchProgress(ctx, from) }()
	go func() { defer wg.Done(); gated, errG = e.remote.FetchGated(ctx, from) }()
	go func() { defer wg.Done(); open, errO = e.remote.FetchOpen(ctx, from) }()
	wg.Wait()

	for _, err := range []error{errP, errG, errO} {
		if err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
	}

	e.mu.Lock()
	fresh := map[string]*DayState{}
	day := func(date string) *DayState {
		if v, ok := fresh[date]; ok {
			return v
		}
		v := &DayState{Date: date}
		fresh[date] = v
		return v
	}

	for i := range progress {
		r := progress[i]
		switch {
		case r.UserID == e.cfg.UserID:
			day(r.Date).MineProgress = &r
		case e.knownAuthor(r.UserID):
			day(r.Date).TheirsProgress = &r
		default:
			logger.Log.Warn("skipping row from unknown author",
				zap.String("table", "progress"),
				logger.WithUserID(r.UserID),
				logger.WithDate(r.Date))
		}
	}
	for i := range gated {
		g := gated[i]
		switch {
		case g.AuthorID == e.cfg.UserID:
			day(g.Date).MineGated = &g
		case e.knownAuthor(g.AuthorID):
			day(g.Date).TheirsGated = &g
		default:
			logger.Log.Warn("skipping row from unknown author",
				zap.String("table", "gated_content"),
				logger.WithUserID(g.AuthorID),
				logger.WithDate(g.Date))
		}
	}
	for i := range open {
		o := open[i]
		switch {
		case o.AuthorID == e.cfg.UserID:
			day(o.Date).MineOpen = &o
		case e.knownAuthor(o.AuthorID):
			day(o.Date).TheirsOpen = &o
		default:
			logger.Log.Warn("skipping row from unknown author",
				zap.String("table", "open_content"),
				logger.WithUserID(o.AuthorID),
				logger.WithDate(o.Date))
		}
	}

	// Overlay unflushed local edits onto the fresh state.
	for key := range e.dirty {
		old, ok := e.days[key.Date]
		if !ok {
			continue
		}
		d := day(key.Date)
		switch key.Field {
		case fieldHours:
			if old.MineProgress != nil {
				d.MineProgress = old.MineProgress
			}
		case fieldGatedMessage:
			if old.MineGated != nil {
				if d.MineGated == nil {
					d.MineGated = old.MineGated
				} else {
					d.MineGated.Message = old.MineGated.Message
				}
			}
		case fieldOpenNotes:
			if old.MineOpen != nil {
				if d.MineOpen == nil {
					d.MineOpen = old.MineOpen
				} else {
					d.MineOpen.SubjectNotes = old.MineOpen.SubjectNotes
				}
			}
		case fieldOpenDiary:
			if old.MineOpen != nil {
				if d.MineOpen == nil {
					d.MineOpen = old.MineOpen
				} else {
					d.MineOpen.DiaryText = old.MineOpen.DiaryText
				}
			}
		}
	}

	e.days = fresh
	e.persistLocked()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// SetHours records a local edit of the day's study hours. The row is updated
// optimistically, including the derived total and unlock snapshot, and the
// push to the server is debounced.
func (e *Engine) SetHours(date string, hours []float64) {
	clamped := repository.ClampHours(hours)
	total := models.Float64Array(clamped).Sum()

	e.mu.Lock()
	d := e.dayLocked(date)
	if d.MineProgress == nil {
		d.MineProgress = &models.ProgressRecord{
			UserID:   e.cfg.UserID,
			CoupleID: e.cfg.CoupleID,
			Date:     date,
		}
	}
	d.MineProgress.Hours = clamped
	d.MineProgress.TotalHours = total
	d.MineProgress.Unlocked = unlock.IsUnlocked(e.cfg.Role, total, catalog.TotalTarget())

	e.markDirtyLocked(fieldKey{Date: date, Field: fieldHours})
	e.persistLocked()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// SetGatedMessage records a local edit of the day's encouragement message
func (e *Engine) SetGatedMessage(date, message string) {
	e.mu.Lock()
	d := e.dayLocked(date)
	if d.MineGated == nil {
		d.MineGated = &models.GatedContent{
			CoupleID: e.cfg.CoupleID,
			AuthorID: e.cfg.UserID,
			Date:     date,
			Role:     e.cfg.Role,
		}
	}
	d.MineGated.Message = message

	e.markDirtyLocked(fieldKey{Date: date, Field: fieldGatedMessage})
	e.persistLocked()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// SetOpenNotes records a local edit of the day's per-subject notes
func (e *Engine) SetOpenNotes(date string, notes []string) {
	e.mu.Lock()
	d := e.dayLocked(date)
	if d.MineOpen == nil {
		d.MineOpen = e.newOpenRow(date)
	}
	d.MineOpen.SubjectNotes = catalog.PadNotes(notes)

	e.markDirtyLocked(fieldKey{Date: date, Field: fieldOpenNotes})
	e.persistLocked()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// SetOpenDiary records a local edit of the day's diary text
func (e *Engine) SetOpenDiary(date, diary string) {
	e.mu.Lock()
	d := e.dayLocked(date)
	if d.MineOpen == nil {
		d.MineOpen = e.newOpenRow(date)
	}
	d.MineOpen.DiaryText = diary

	e.markDirtyLocked(fieldKey{Date: date, Field: fieldOpenDiary})
	e.persistLocked()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func (e *Engine) newOpenRow(date string) *models.OpenContent {
	return &models.OpenContent{
		CoupleID:     e.cfg.CoupleID,
		AuthorID:     e.cfg.UserID,
		Date:         date,
		Role:         e.cfg.Role,
		SubjectNotes: make(models.StringArray, catalog.Len()),
	}
}

func (e *Engine) dayLocked(date string) *DayState {
	if d, ok := e.days[date]; ok {
		return d
	}
	d := &DayState{Date: date}
	e.days[date] = d
	return d
}

// markDirtyLocked bumps the field's generation and (re)starts its debounce
// timer. Caller holds e.mu.
func (e *Engine) markDirtyLocked(key fieldKey) {
	e.dirty[key]++

	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	e.timers[key] = time.AfterFunc(e.flushDelay, func() {
		e.flushField(e.ctx, key)
	})
}

// flushField pushes one field's current local value to the server, bounded by
// the given parent context. The dirty mark is cleared only if no further edit
// landed while the push was in flight.
func (e *Engine) flushField(parent context.Context, key fieldKey) {
	ctx, cancel := context.WithTimeout(parent, 20*time.Second)
	defer cancel()

	e.mu.Lock()
	gen := e.dirty[key]
	d, ok := e.days[key.Date]
	if !ok || gen == 0 {
		delete(e.timers, key)
		e.mu.Unlock()
		return
	}

	var push func() error
	switch key.Field {
	case fieldHours:
		if d.MineProgress == nil {
			delete(e.dirty, key)
			delete(e.timers, key)
			e.mu.Unlock()
			return
		}
		hours := append([]float64(nil), d.MineProgress.Hours...)
		push = func() error {
			_, err := e.remote.PushProgress(ctx, key.Date, hours)
			return err
		}
	case fieldGatedMessage:
		if d.MineGated == nil {
			delete(e.dirty, key)
			delete(e.timers, key)
			e.mu.Unlock()
			return
		}
		message := d.MineGated.Message
		push = func() error {
			_, err := e.remote.PushGated(ctx, key.Date, message)
			return err
		}
	case fieldOpenNotes, fieldOpenDiary:
		if d.MineOpen == nil {
			delete(e.dirty, key)
			delete(e.timers, key)
			e.mu.Unlock()
			return
		}
		notes := append([]string(nil), d.MineOpen.SubjectNotes...)
		diary := d.MineOpen.DiaryText
		push = func() error {
			_, err := e.remote.PushOpen(ctx, key.Date, notes, diary)
			return err
		}
	default:
		delete(e.dirty, key)
		delete(e.timers, key)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	err := push()

	e.mu.Lock()
	delete(e.timers, key)
	if err != nil {
		// Keep the dirty mark; retry on the next edit or explicit Flush.
		onFlushError := e.onFlushError
		e.mu.Unlock()
		if e.ctx.Err() == nil {
			logger.Log.Warn("flush failed",
				zap.String("field", key.Field),
				logger.WithDate(key.Date),
				zap.Error(err))
			if onFlushError != nil {
				onFlushError(err)
			}
		}
		return
	}
	if e.dirty[key] == gen {
		delete(e.dirty, key)
	}
	e.mu.Unlock()
}

// Flush pushes every pending edit immediately, bypassing the debounce
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	keys := make([]fieldKey, 0, len(e.dirty))
	for key := range e.dirty {
		keys = append(keys, key)
		if t, ok := e.timers[key]; ok {
			t.Stop()
			delete(e.timers, key)
		}
	}
	e.mu.Unlock()

	for _, key := range keys {
		e.flushField(ctx, key)
	}

	e.mu.Lock()
	remaining := len(e.dirty)
	e.mu.Unlock()
	if remaining > 0 {
		return fmt.Errorf("sync: %d fields still pending after flush", remaining)
	}
	return nil
}

// HasPending reports whether any local edit has not reached the server yet
func (e *Engine) HasPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty) > 0
}

// Day returns a snapshot of one day's state, or nil if unknown
func (e *Engine) Day(date string) *DayState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.days[date]; ok {
		return d.Clone()
	}
	return nil
}

// Days returns a snapshot of all cached days, newest first
func (e *Engine) Days() []*DayState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*DayState, 0, len(e.days))
	for _, d := range e.days {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// HoursRemaining reports how many study hours are still needed before the
// day unlocks, based on the writer's local snapshot.
func (e *Engine) HoursRemaining(date string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0.0
	if d, ok := e.days[date]; ok && d.MineProgress != nil {
		total = d.MineProgress.TotalHours
	}
	return unlock.HoursRemaining(total, catalog.TotalTarget())
}

// persistLocked writes the cache file. Caller holds e.mu. Persistence
// failures are logged, never fatal; the engine keeps working from memory.
func (e *Engine) persistLocked() {
	if e.cache == nil {
		return
	}
	if err := e.cache.Save(e.cfg.UserID, e.cfg.CoupleID, e.days); err != nil {
		logger.Log.Warn("cache persist failed", zap.Error(err))
	}
}

// Close flushes pending edits, stops the realtime subscription, and persists
// the cache
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flushErr := e.Flush(ctx)

	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
	e.persistLocked()
	e.mu.Unlock()

	return flushErr
}
