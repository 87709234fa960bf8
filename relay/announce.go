package relay

import (
	"time"

	"github.com/ahwlsqja/txrelay/metrics"
)

// announcer remembers when the last re-announcement sweep finished.
type announcer struct {
	interval time.Duration
	last     time.Time
}

func newAnnouncer(interval time.Duration, now time.Time) *announcer {
	return &announcer{interval: interval, last: now}
}

// due reports whether a full interval has passed since the last sweep.
func (a *announcer) due(now time.Time) bool {
	return now.Sub(a.last) >= a.interval
}

func (a *announcer) reset(now time.Time) {
	a.last = now
}

// maybeAnnounce re-announces every unconfirmed transaction missing from the cache,
// at most once per interval. It covers local transactions whose first announcement
// was lost or happened before any peer connected.
func (r *Relay) maybeAnnounce() error {
	start := r.clock.Now()
	if !r.announcer.due(start) {
		return nil
	}

	records, err := r.readUnconfirmed(opAnnounce)
	if err != nil {
		return err
	}

	announced := 0
	for _, rec := range records {
		hash := rec.Hash()
		if r.cache.Contains(hash) {
			continue
		}
		if _, ok := r.announce(hash, metrics.ReasonSweep); ok {
			announced++
		}
	}

	end := r.clock.Now()
	r.announcer.reset(end)
	r.metrics.RecordSweep(end.Sub(start))
	r.logger.Debug("Announcement sweep done", "unconfirmed", len(records), "announced", announced)
	return nil
}
