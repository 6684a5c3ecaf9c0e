package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/groutine"
)

// EndReason tells why a scan run finished
type EndReason int

const (
	// EndExpired means the run's duration elapsed without a match
	EndExpired EndReason = iota
	// EndMatched means the run stopped itself after matching the target
	EndMatched
	// EndStopped means Stop was called or the parent context ended
	EndStopped
	// EndError means the radio failed the scan
	EndError
)

func (r EndReason) String() string {
	switch r {
	case EndExpired:
		return "expired"
	case EndMatched:
		return "matched"
	case EndStopped:
		return "stopped"
	case EndError:
		return "error"
	default:
		return "unknown"
	}
}

// Handlers receive the controller's callbacks. Both run on the radio's
// scanning goroutine and must not block.
type Handlers struct {
	OnMatch   func(adv device.Advertisement)
	OnScanEnd func(reason EndReason, err error)
}

// Controller runs timed scans looking for a single identity
type Controller struct {
	radio    device.Scanner
	identity device.Identity
	handlers Handlers
	logger   *logrus.Logger

	mu     sync.Mutex
	run    uint64
	cancel context.CancelFunc

	group groutine.Group
}

// NewController creates a controller that reports matches of identity
func NewController(radio device.Scanner, identity device.Identity, handlers Handlers, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		radio:    radio,
		identity: identity,
		handlers: handlers,
		logger:   logger,
	}
}

// StartScanning begins a scan run and returns immediately. A run still in
// progress is superseded and does not report its end. The first advertisement
// matching the identity stops the run and is reported exactly once, however
// many duplicate reports the radio delivers before the stop takes effect.
func (c *Controller) StartScanning(ctx context.Context, params device.ScanParams) {
	runCtx, cancel := context.WithCancel(ctx)
	matched := &atomic.Bool{}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.run++
	run := c.run
	c.cancel = cancel
	c.mu.Unlock()

	seen := hashmap.New[string, *tracked]()

	c.logger.WithFields(logrus.Fields{
		"target":   c.identity.String(),
		"window":   params.Window,
		"interval": params.Interval,
		"duration": params.Duration,
		"active":   params.Active,
	}).Debug("Scan started")

	c.group.Go(runCtx, "scan", func(ctx context.Context) {
		err := c.radio.Scan(ctx, params, func(adv device.Advertisement) {
			c.onAdvertisement(adv, seen, matched, cancel)
		})
		cancel()

		c.mu.Lock()
		current := c.run == run
		if current {
			c.cancel = nil
		}
		c.mu.Unlock()

		if !current {
			return
		}

		reason := classify(err, matched.Load())
		entry := c.logger.WithFields(logrus.Fields{
			"reason":  reason.String(),
			"devices": seen.Len(),
		})
		if reason == EndError {
			entry.WithError(err).Warn("Scan failed")
		} else {
			entry.Debug("Scan ended")
		}

		if c.handlers.OnScanEnd != nil {
			c.handlers.OnScanEnd(reason, err)
		}
	})
}

// Stop ends the current run, if any. Its end is reported as EndStopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Scanning reports whether a run is in progress
func (c *Controller) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Wait blocks until every scan goroutine has returned
func (c *Controller) Wait() {
	c.group.Wait()
}

func (c *Controller) onAdvertisement(adv device.Advertisement, seen *hashmap.Map[string, *tracked], matched *atomic.Bool, stop context.CancelFunc) {
	entry, _ := seen.GetOrInsert(normalizeAddress(adv.Addr()), newTracked(adv))
	entry.update(adv)

	if !c.identity.Matches(adv) {
		return
	}
	if !matched.CompareAndSwap(false, true) {
		return
	}

	c.logger.WithFields(logrus.Fields{
		"address": adv.Addr(),
		"name":    adv.LocalName(),
		"rssi":    adv.RSSI(),
	}).Info("Target found")

	stop()
	if c.handlers.OnMatch != nil {
		c.handlers.OnMatch(adv)
	}
}

func classify(err error, matched bool) EndReason {
	switch {
	case matched:
		return EndMatched
	case err == nil, errors.Is(err, context.DeadlineExceeded):
		return EndExpired
	case errors.Is(err, context.Canceled):
		return EndStopped
	default:
		return EndError
	}
}
