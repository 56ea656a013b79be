// Package health supplements the spec's callback notification mode (spec
// §4.6) with adaptive pacing: under ModeCallback, many contexts can have
// transactions running concurrently, each on a goroutine of its own. Under
// sustained CPU pressure that fan-out itself becomes the bottleneck, so a
// callback-mode subscribe is paced against a smoothed host CPU reading
// before it issues its next long-poll.
//
// Grounded on go-server/internal/metrics/system.go's SystemMetrics: the
// same gopsutil/v3 cpu.Percent call and exponential-moving-average
// smoothing (alpha=0.3), trimmed down to the one reading callback dispatch
// needs.
package health

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

const emaAlpha = 0.3

// CPUPacer tracks a smoothed host CPU percentage and reports whether
// callback dispatch should be paused.
type CPUPacer struct {
	mu         sync.RWMutex
	smoothed   float64
	haveSample bool
	threshold  float64
	sampler    func() (float64, error)
}

// NewCPUPacer creates a pacer that recommends pausing callback dispatch
// once the smoothed CPU percentage exceeds thresholdPercent (0-100).
func NewCPUPacer(thresholdPercent float64) *CPUPacer {
	return &CPUPacer{
		threshold: thresholdPercent,
		sampler:   sampleHostCPU,
	}
}

func sampleHostCPU() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

// Sample takes one CPU reading and folds it into the smoothed value. Meant
// to be called periodically (e.g. once per second) by a background
// goroutine the Context façade starts lazily the first time a ModeCallback
// Subscribe runs with adaptive pacing configured.
func (p *CPUPacer) Sample() error {
	current, err := p.sampler()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.haveSample {
		p.smoothed = current
		p.haveSample = true
	} else {
		p.smoothed = emaAlpha*current + (1-emaAlpha)*p.smoothed
	}
	return nil
}

// ShouldPause reports whether the smoothed CPU reading is over threshold.
// Before any Sample has been taken it always returns false (fail open: a
// never-sampled pacer never blocks callback delivery).
func (p *CPUPacer) ShouldPause() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.haveSample && p.smoothed > p.threshold
}

// Smoothed returns the current smoothed CPU percentage and whether any
// sample has been taken yet.
func (p *CPUPacer) Smoothed() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.smoothed, p.haveSample
}

// WaitUntilReady blocks until ShouldPause reports false or deadline
// elapses, polling every pollInterval. Used by a ModeCallback Subscribe to
// defer its next long-poll rather than skip it.
func (p *CPUPacer) WaitUntilReady(deadline time.Time, pollInterval time.Duration) bool {
	for {
		if !p.ShouldPause() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
