package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/draftforge/propeller/pkg/common/logger"
)

// PollCadence names one of the poller's scheduling modes.
type PollCadence string

const (
	// CadenceFast is used while any document is actively analyzing.
	CadenceFast PollCadence = "fast"

	// CadenceNormal is the idle/waiting default.
	CadenceNormal PollCadence = "normal"

	// CadenceSettling is used right after document-stage completion while
	// the next stage's trigger is awaiting confirmation.
	CadenceSettling PollCadence = "settling"

	// CadenceSlow is used once all documents are processed and the pipeline
	// is otherwise idle.
	CadenceSlow PollCadence = "slow"

	// CadenceStopped halts ticking entirely, once both stages are complete
	// and triggered or the run is terminal.
	CadenceStopped PollCadence = "stopped"
)

// PollerConfig holds the interval for each cadence and the hysteresis band
// below which interval changes are not committed.
type PollerConfig struct {
	Fast       time.Duration `yaml:"fast"`
	Normal     time.Duration `yaml:"normal"`
	Settling   time.Duration `yaml:"settling"`
	Slow       time.Duration `yaml:"slow"`
	Hysteresis time.Duration `yaml:"hysteresis"`
}

// DefaultPollerConfig returns the stock cadence intervals.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Fast:       3 * time.Second,
		Normal:     5 * time.Second,
		Settling:   10 * time.Second,
		Slow:       15 * time.Second,
		Hysteresis: time.Second,
	}
}

func (c PollerConfig) interval(cadence PollCadence) time.Duration {
	switch cadence {
	case CadenceFast:
		return c.Fast
	case CadenceSettling:
		return c.Settling
	case CadenceSlow:
		return c.Slow
	case CadenceStopped:
		return 0
	default:
		return c.Normal
	}
}

// AdaptivePoller schedules snapshot fetches at a cadence that follows the
// pipeline's phase. It guarantees a single in-flight fetch per session: a
// tick that fires while a fetch is still running is a no-op. Pausing
// suppresses future fetches without canceling an in-flight one, and the
// elapsed counter advances on every tick regardless of pause state.
type AdaptivePoller struct {
	cfg   PollerConfig
	fetch func(context.Context)

	mu       sync.Mutex
	cadence  PollCadence
	interval time.Duration
	paused   bool
	elapsed  time.Duration

	inFlight atomic.Bool
	rearm    chan time.Duration

	logger *logger.Logger
}

// NewAdaptivePoller creates a poller that invokes fetch on each eligible
// tick. The poller starts at the normal cadence; Run must be called to
// begin ticking.
func NewAdaptivePoller(cfg PollerConfig, fetch func(context.Context), log *logger.Logger) *AdaptivePoller {
	return &AdaptivePoller{
		cfg:      cfg,
		fetch:    fetch,
		cadence:  CadenceNormal,
		interval: cfg.Normal,
		rearm:    make(chan time.Duration, 1),
		logger:   log,
	}
}

// Run drives the tick loop until ctx is canceled. It owns the underlying
// timer, re-arming it on cadence changes and stopping it entirely for
// CadenceStopped.
func (p *AdaptivePoller) Run(ctx context.Context) {
	p.mu.Lock()
	interval := p.interval
	p.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.rearm:
			if d <= 0 {
				ticker.Stop()
				continue
			}
			ticker.Reset(d)
		case <-ticker.C:
			p.onTick(ctx)
		}
	}
}

// onTick advances the elapsed counter, then dispatches a fetch unless the
// poller is paused, stopped, or a fetch is already in flight.
func (p *AdaptivePoller) onTick(ctx context.Context) {
	p.mu.Lock()
	p.elapsed += p.interval
	skip := p.paused || p.cadence == CadenceStopped
	p.mu.Unlock()

	if skip {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer p.inFlight.Store(false)
		p.fetch(ctx)
	}()
}

// SetCadence switches scheduling modes. The new interval is committed only
// when it differs from the current one by more than the hysteresis band,
// to avoid timer churn from tiny state fluctuations. CadenceStopped always
// commits and halts ticking entirely.
func (p *AdaptivePoller) SetCadence(ctx context.Context, cadence PollCadence) {
	p.mu.Lock()
	if cadence == p.cadence {
		p.mu.Unlock()
		return
	}

	target := p.cfg.interval(cadence)
	if cadence != CadenceStopped && p.cadence != CadenceStopped {
		if diff := (target - p.interval).Abs(); diff <= p.cfg.Hysteresis {
			p.cadence = cadence
			p.mu.Unlock()
			return
		}
	}

	prev := p.cadence
	p.cadence = cadence
	p.interval = target
	p.mu.Unlock()

	// Keep only the most recent re-arm request.
	select {
	case <-p.rearm:
	default:
	}
	p.rearm <- target

	p.logger.Debug(ctx, "poll cadence changed",
		"from", string(prev),
		"to", string(cadence),
		"interval", target.String())
}

// Cadence returns the current scheduling mode.
func (p *AdaptivePoller) Cadence() PollCadence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cadence
}

// Pause suppresses future fetches. An in-flight fetch is not canceled.
func (p *AdaptivePoller) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume re-enables fetches on subsequent ticks.
func (p *AdaptivePoller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Elapsed returns the total scheduled time accumulated across ticks,
// including ticks that were skipped while paused.
func (p *AdaptivePoller) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}
