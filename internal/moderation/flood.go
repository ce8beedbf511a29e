package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/puzpuzpuz/xsync/v3"
)

type floodKey struct {
	ChatID int64
	UserID int64
}

type floodEntry struct {
	mu            sync.Mutex
	limiter       *slidingwindow.Limiter
	stop          slidingwindow.StopFunc
	lastTriggered time.Time
	lastSeen      time.Time
}

// FloodDetector tracks per-(chat,user) message rates over a sliding window.
// Entries for different users never contend; two near-simultaneous messages
// from the same user serialize on the entry mutex so neither is lost.
type FloodDetector struct {
	window    time.Duration
	threshold int64
	entries   *xsync.MapOf[floodKey, *floodEntry]

	mu       sync.Mutex
	started  bool
	cancelGC context.CancelFunc
	wg       sync.WaitGroup
}

func NewFloodDetector(window time.Duration, threshold int64) *FloodDetector {
	if window <= 0 {
		window = time.Minute
	}
	if threshold < 1 {
		threshold = 1
	}
	return &FloodDetector{
		window:    window,
		threshold: threshold,
		entries:   xsync.NewMapOf[floodKey, *floodEntry](),
	}
}

// RecordAndCheck counts the message and reports whether it crosses the flood
// threshold. At most one trigger fires per window interval per user, so a
// sustained burst yields a single flood violation instead of one per message.
func (f *FloodDetector) RecordAndCheck(chatID, userID int64, ts time.Time) bool {
	entry, _ := f.entries.LoadOrCompute(floodKey{ChatID: chatID, UserID: userID}, func() *floodEntry {
		lim, stop := f.newLimiter()
		return &floodEntry{limiter: lim, stop: stop}
	})

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.lastSeen = ts
	if entry.limiter.Allow() {
		return false
	}
	if !entry.lastTriggered.IsZero() && ts.Sub(entry.lastTriggered) < f.window {
		return false
	}
	entry.lastTriggered = ts
	return true
}

func (f *FloodDetector) newLimiter() (*slidingwindow.Limiter, slidingwindow.StopFunc) {
	return slidingwindow.NewLimiter(f.window, f.threshold, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
}

// Start launches the GC loop dropping windows idle long enough that they can
// no longer influence a decision. State is ephemeral by design; losing it on
// restart costs at most a few seconds of history.
func (f *FloodDetector) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	gcCtx, cancel := context.WithCancel(ctx)
	f.cancelGC = cancel
	f.started = true

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.window)
		defer ticker.Stop()
		for {
			select {
			case <-gcCtx.Done():
				return
			case now := <-ticker.C:
				f.collect(now)
			}
		}
	}()
	return nil
}

func (f *FloodDetector) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = false
	cancel := f.cancelGC
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (f *FloodDetector) collect(now time.Time) {
	staleAfter := 10 * f.window
	f.entries.Range(func(key floodKey, entry *floodEntry) bool {
		entry.mu.Lock()
		stale := now.Sub(entry.lastSeen) > staleAfter
		entry.mu.Unlock()
		if stale {
			f.entries.Delete(key)
			entry.stop()
		}
		return true
	})
}
