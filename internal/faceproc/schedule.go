package faceproc

import (
	"context"
	"fmt"
	"time"

	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// DailyTime is a wall-clock time of day
type DailyTime struct {
	Hour   int
	Minute int
}

// ParseDailyTime parses "HH:MM"
func ParseDailyTime(s string) (DailyTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return DailyTime{}, fmt.Errorf("invalid daily time %q: %w", s, err)
	}
	return DailyTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (d DailyTime) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// on returns the target instant on the date of now
func (d DailyTime) on(now time.Time) time.Time {
	y, m, day := now.Date()
	return time.Date(y, m, day, d.Hour, d.Minute, 0, 0, now.Location())
}

// dailyTrigger fires at most once per date, at the first check on or after
// the target time. A start after today's target counts as today's run.
type dailyTrigger struct {
	at        DailyTime
	lastFired string
}

func newDailyTrigger(at DailyTime, now time.Time) *dailyTrigger {
	t := &dailyTrigger{at: at}
	if !now.Before(at.on(now)) {
		t.lastFired = dateKey(now)
	}
	return t
}

// due reports whether the trigger fires at now and marks the date as fired
func (t *dailyTrigger) due(now time.Time) bool {
	if now.Before(t.at.on(now)) || t.lastFired == dateKey(now) {
		return false
	}
	t.lastFired = dateKey(now)
	return true
}

// undo forgets a firing so the next check retries
func (t *dailyTrigger) undo(previous string) {
	t.lastFired = previous
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (m *Machine) runScheduler(ctx context.Context, at DailyTime) {
	defer m.wg.Done()

	trigger := newDailyTrigger(at, m.now())
	ticker := time.NewTicker(m.cfg.ResyncCheck)
	defer ticker.Stop()
	logger.Info("FaceSM", "Daily resync scheduled at %s", at)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			previous := trigger.lastFired
			if !trigger.due(m.now()) {
				continue
			}
			logger.Info("FaceSM", "Daily resync due")
			if err := m.Submit(types.Command{Name: types.CommandResync, Raw: "resync"}); err != nil {
				logger.Warn("FaceSM", "Daily resync not queued: %v", err)
				trigger.undo(previous)
			}
		}
	}
}
