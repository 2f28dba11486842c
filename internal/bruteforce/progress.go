package bruteforce

import (
	"time"
)

// progressLogger periodically reports how many keys a search checked since
// the previous report.
type progressLogger struct {
	search      *searchState
	lastChecked uint64
	lastLogTime time.Time
}

// logProgress logs the keys checked since the last report along with the
// current rate and the estimated time to exhaust the range.
func (p *progressLogger) logProgress(now time.Time) {
	stats := p.search.stats()
	duration := now.Sub(p.lastLogTime)

	// Truncate the duration to 10s of milliseconds.
	durationMillis := int64(duration / time.Millisecond)
	tDuration := 10 * time.Millisecond * time.Duration(durationMillis/10)

	delta := stats.Checked - p.lastChecked
	keyStr := "keys"
	if delta == 1 {
		keyStr = "key"
	}
	etaStr := "unknown"
	if stats.ETA > 0 {
		etaStr = stats.ETA.Round(time.Second).String()
	}
	log.Infof("Checked %d %s in the last %s (%.0f keys/s, %d searched, "+
		"%s remaining, ETA %s)", delta, keyStr, tDuration,
		rate(delta, duration), stats.Searched, stats.Remaining, etaStr)

	p.lastChecked = stats.Checked
	p.lastLogTime = now
}

// startProgressLogger logs the progress of s every LogInterval until the
// returned function is called.
func (c *Coordinator) startProgressLogger(s *searchState) func() {
	if c.cfg.LogInterval < 0 {
		return func() {}
	}

	p := &progressLogger{search: s, lastLogTime: s.started}
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.LogInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				p.logProgress(now)
			case <-quit:
				return
			}
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}
