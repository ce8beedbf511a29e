package handlers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/sunopiusme/rlguardbot/internal/bot"
	"github.com/sunopiusme/rlguardbot/internal/i18n"
)

const digestLastRunKey = "report_digest_last_run"

type digestStore interface {
	GetChatsWithPendingReports(ctx context.Context) ([]int64, error)
	CountReports(ctx context.Context, chatID int64) (int, int, error)
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}

// ReportDigest periodically reminds chats with a non-empty review queue. The
// last-run timestamp lives in the kv store so a restart inside the interval
// does not re-send the digest.
type ReportDigest struct {
	s        bot.Service
	store    digestStore
	interval time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewReportDigest(s bot.Service, store digestStore, interval time.Duration) *ReportDigest {
	return &ReportDigest{
		s:        s,
		store:    store,
		interval: interval,
	}
}

func (d *ReportDigest) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.interval <= 0 {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.started = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval / 4)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.runDue(runCtx)
			}
		}
	}()
	return nil
}

func (d *ReportDigest) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *ReportDigest) runDue(ctx context.Context) {
	entry := d.getLogEntry()

	raw, err := d.store.GetKV(ctx, digestLastRunKey)
	if err != nil {
		entry.WithError(err).Error("cant read last digest run")
		return
	}
	if raw != "" {
		lastUnix, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && time.Since(time.Unix(lastUnix, 0)) < d.interval {
			return
		}
	}

	if err := d.sendDigests(ctx); err != nil {
		entry.WithError(err).Error("cant send report digests")
		return
	}
	if err := d.store.SetKV(ctx, digestLastRunKey, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		entry.WithError(err).Error("cant persist last digest run")
	}
}

func (d *ReportDigest) sendDigests(ctx context.Context) error {
	chatIDs, err := d.store.GetChatsWithPendingReports(ctx)
	if err != nil {
		return err
	}
	for _, chatID := range chatIDs {
		_, pending, err := d.store.CountReports(ctx, chatID)
		if err != nil {
			return err
		}
		if pending == 0 {
			continue
		}
		lang := d.s.GetLanguage(ctx, chatID, nil)
		text := fmt.Sprintf("%s: %d\n%s",
			i18n.Get("Reports awaiting review", lang), pending,
			i18n.Get("Resolve with /review <id> approve|reject", lang))
		msg := api.NewMessage(chatID, text)
		msg.DisableNotification = true
		if _, err := d.s.GetBot().Send(msg); err != nil {
			d.getLogEntry().WithError(err).WithField("chat_id", chatID).Warn("cant send digest")
		}
	}
	return nil
}

func (d *ReportDigest) getLogEntry() *log.Entry {
	return log.WithField("context", "report_digest")
}
