package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// missedTickWindow is how far back the loop looks when checking whether it
// keeps up with its tick interval.
const missedTickWindow = time.Second

// TimeSeriesRecorder records the last N tick times.
type TimeSeriesRecorder struct {
	MaxRecordCount int
	// Interval is the expected spacing between two records.
	Interval    time.Duration
	LastRecords []time.Time
	mu          *sync.Mutex
}

// NewTimeSeriesRecorder returns a new TimeSeriesRecorder.
func NewTimeSeriesRecorder(maxRecordCount int, interval time.Duration) *TimeSeriesRecorder {
	return &TimeSeriesRecorder{
		MaxRecordCount: maxRecordCount,
		Interval:       interval,
		LastRecords:    make([]time.Time, 0, maxRecordCount),
		mu:             &sync.Mutex{},
	}
}

// AddRecord adds a new record.
func (r *TimeSeriesRecorder) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading.
	t = t.Round(0)

	if len(r.LastRecords) >= r.MaxRecordCount {
		r.LastRecords = r.LastRecords[1:]
	}
	r.LastRecords = append(r.LastRecords, t)
}

// GetLastRecord returns the last record.
func (r *TimeSeriesRecorder) GetLastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.LastRecords) == 0 {
		return time.Time{}
	}
	return r.LastRecords[len(r.LastRecords)-1]
}

// GetRecordsIn returns the number of continuous records within last before
// now. Two records are continuous when they are less than twice the
// interval apart.
func (r *TimeSeriesRecorder) GetRecordsIn(now time.Time, last time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	gap := 2 * r.Interval

	// The last record itself must be recent.
	if len(r.LastRecords) > 0 && now.Sub(r.LastRecords[len(r.LastRecords)-1]) >= gap {
		return 0
	}

	count := 0
	for i := len(r.LastRecords) - 1; i >= 0; i-- {
		record := r.LastRecords[i]
		if now.Sub(record) > last {
			break
		}

		theRecordAfter := record
		if i+1 < len(r.LastRecords) {
			theRecordAfter = r.LastRecords[i+1]
		}

		if theRecordAfter.Sub(record) >= gap {
			break
		}
		count++
	}

	return count
}

// runLoop ticks the engine at the configured interval until ctx is done.
// Ticks that fall behind are dropped by the ticker, never queued, so the
// cadence is best effort.
func (d *Daemon) runLoop(ctx context.Context) {
	interval := d.recorder.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval).Debug("tick loop starts")

	lastCheck := time.Now()
	for {
		select {
		case <-ctx.Done():
			logrus.Debug("tick loop stopped")
			return
		case now := <-ticker.C:
			d.tickOnce(now)
			if now.Sub(lastCheck) >= missedTickWindow {
				d.checkMissedTicks(now)
				lastCheck = now
			}
		}
	}
}

// tickOnce runs one engine tick and pushes the color to the device.
func (d *Daemon) tickOnce(now time.Time) {
	d.eng.Tick(now)
	d.recorder.AddRecord(now)

	if err := d.dev.WriteColor(d.eng.CurrentColor()); err != nil {
		if now.Sub(d.lastWriteErr) >= missedTickWindow {
			logrus.WithError(err).Error("failed to write color to device")
			d.lastWriteErr = now
		}
	}
}

// checkMissedTicks reports whether the loop fell noticeably behind.
func (d *Daemon) checkMissedTicks(now time.Time) bool {
	count := d.recorder.GetRecordsIn(now, missedTickWindow)
	expected := int(missedTickWindow / d.recorder.Interval)
	// Allow 10% slack before complaining.
	minimum := expected - expected/10

	if count < minimum {
		logrus.WithFields(logrus.Fields{
			"tickCount":         count,
			"expectedTickCount": expected,
			"minTickCount":      minimum,
			"lastTick":          d.recorder.GetLastRecord().Format(time.RFC3339Nano),
		}).Debug("tick loop is falling behind")
		return true
	}
	return false
}
