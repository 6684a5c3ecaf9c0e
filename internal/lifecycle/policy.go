// Package lifecycle owns the connection state machine: it reacts to scan
// matches, scan ends, connect outcomes and link drops, and turns every
// failure back into a fresh scan.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/groutine"
	"github.com/srg/mastgate/internal/session"
	"github.com/srg/mastgate/scanner"
	"golang.org/x/time/rate"
)

// ErrLinkLost is the teardown cause when the radio reports a dropped link
var ErrLinkLost = errors.New("link lost")

// Session is the part of the device session the policy drives
type Session interface {
	State() session.State
	Transition(to session.State) error
	AttemptConnect(ctx context.Context, address string) error
	Teardown(cause error)
	Disconnected() <-chan struct{}
}

// Loop is the cooperative event loop the policy runs on
type Loop interface {
	Post(fn func()) error
	OnDelay(d time.Duration, fn func()) (cancel func())
}

// Config tunes scanning and retry pacing
type Config struct {
	Target device.Identity
	Scan   device.ScanParams

	// ScanRetryDelay is the pause before rescanning after the radio failed a scan
	ScanRetryDelay time.Duration
	// ReconnectInterval is the minimum spacing of connect attempts after ReconnectBurst; 0 disables pacing
	ReconnectInterval time.Duration
	ReconnectBurst    int
}

// Policy drives a session through scan, connect and recovery.
// Handle and everything it calls run on the loop goroutine.
type Policy struct {
	session Session
	scanner *scanner.Controller
	loop    Loop
	cfg     Config
	logger  *logrus.Logger
	limiter *rate.Limiter

	ctx     context.Context
	group   groutine.Group
	linkGen uint64

	cancelRetry   func()
	cancelConnect func()
}

// New creates a policy scanning on radio for cfg.Target
func New(sess Session, radio device.Scanner, loop Loop, cfg Config, logger *logrus.Logger) *Policy {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ReconnectBurst <= 0 {
		cfg.ReconnectBurst = 1
	}

	limit := rate.Inf
	if cfg.ReconnectInterval > 0 {
		limit = rate.Every(cfg.ReconnectInterval)
	}

	p := &Policy{
		session: sess,
		loop:    loop,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, cfg.ReconnectBurst),
		ctx:     context.Background(),
	}
	p.scanner = scanner.NewController(radio, cfg.Target, scanner.Handlers{
		OnMatch: func(adv device.Advertisement) {
			p.post(Event{Kind: AdvertisementMatched, Address: adv.Addr()})
		},
		OnScanEnd: func(reason scanner.EndReason, err error) {
			p.post(Event{Kind: ScanEnded, Reason: reason, Err: err})
		},
	}, logger)
	return p
}

// Start moves the session from Idle to Scanning and begins the first scan.
// It must be called on the loop goroutine; ctx bounds every scan and connect attempt.
func (p *Policy) Start(ctx context.Context) error {
	p.ctx = ctx
	if err := p.session.Transition(session.StateScanning); err != nil {
		return err
	}
	p.logger.WithField("target", p.cfg.Target.String()).Info("Looking for wind sensor")
	p.startScan()
	return nil
}

// Wait blocks until the scan, connect and link watch goroutines have returned.
// Cancel the Start context first.
func (p *Policy) Wait() {
	p.group.Wait()
	p.scanner.Wait()
}

// Handle is the single dispatch point for lifecycle events
func (p *Policy) Handle(ev Event) {
	if p.ctx.Err() != nil {
		return
	}

	state := p.session.State()
	log := p.logger.WithFields(logrus.Fields{
		"event": ev.Kind.String(),
		"state": state.String(),
	})

	switch ev.Kind {
	case AdvertisementMatched:
		if state != session.StateScanning {
			log.Debug("Ignoring match outside of scanning")
			return
		}
		if err := p.session.Transition(session.StateConnecting); err != nil {
			log.WithError(err).Error("Cannot start connecting")
			return
		}
		p.scanner.Stop()
		p.connect(ev.Address)

	case ConnectFinished:
		if ev.Err != nil {
			reason, _ := session.ReasonOf(ev.Err)
			log.WithError(ev.Err).WithFields(logrus.Fields{
				"address": ev.Address,
				"reason":  string(reason),
			}).Error("Connect attempt failed")
			p.recover(ev.Err)
			return
		}
		log.WithField("address", ev.Address).Info("Wind sensor connected")
		p.watchLink()

	case ScanEnded:
		// Matched and Stopped end a scan the policy itself stopped on its way to
		// Connecting. A failed attempt rescans through recover, so restarting
		// here would race the connect.
		switch ev.Reason {
		case scanner.EndExpired:
			if state == session.StateScanning || state == session.StateFailed {
				p.startScan()
			}
		case scanner.EndError:
			if state == session.StateScanning {
				log.WithError(ev.Err).WithField("delay", p.cfg.ScanRetryDelay).Warn("Scan failed, retrying")
				p.retryScan()
			}
		}

	case LinkDropped:
		if ev.link != 0 && ev.link != p.linkGen {
			log.Debug("Ignoring drop of a previous link")
			return
		}
		cause := ev.Err
		if cause == nil {
			cause = ErrLinkLost
		}
		log.WithError(cause).Warn("Link dropped")
		p.recover(cause)
	}
}

// recover is the uniform path back to scanning: handles are cleared, state
// becomes Scanning and a new scan starts.
func (p *Policy) recover(cause error) {
	p.linkGen++
	if p.cancelConnect != nil {
		p.cancelConnect()
		p.cancelConnect = nil
	}
	p.session.Teardown(cause)
	p.startScan()
}

func (p *Policy) startScan() {
	if p.cancelRetry != nil {
		p.cancelRetry()
		p.cancelRetry = nil
	}
	p.scanner.StartScanning(p.ctx, p.cfg.Scan)
}

func (p *Policy) retryScan() {
	if p.cancelRetry != nil {
		p.cancelRetry()
	}
	p.cancelRetry = p.loop.OnDelay(p.cfg.ScanRetryDelay, func() {
		p.cancelRetry = nil
		if p.session.State() == session.StateScanning {
			p.startScan()
		}
	})
}

// connect runs the attempt off the loop and posts its outcome back,
// after waiting for the reconnect limiter if needed
func (p *Policy) connect(address string) {
	run := func() {
		p.cancelConnect = nil
		p.group.Go(p.ctx, "connect", func(ctx context.Context) {
			p.logger.WithFields(logrus.Fields{
				"address":   address,
				"goroutine": groutine.GetName(ctx),
			}).Debug("Connect attempt started")
			err := p.session.AttemptConnect(ctx, address)
			p.post(Event{Kind: ConnectFinished, Address: address, Err: err})
		})
	}

	delay := p.limiter.Reserve().Delay()
	if delay <= 0 {
		run()
		return
	}

	p.logger.WithFields(logrus.Fields{
		"address": address,
		"delay":   delay,
	}).Info("Connect attempt deferred")
	p.cancelConnect = p.loop.OnDelay(delay, run)
}

// watchLink posts LinkDropped when the current link goes away
func (p *Policy) watchLink() {
	p.linkGen++
	gen := p.linkGen

	done := p.session.Disconnected()
	if done == nil {
		p.post(Event{Kind: LinkDropped, Err: ErrLinkLost, link: gen})
		return
	}

	p.group.Go(p.ctx, "link-watch", func(ctx context.Context) {
		select {
		case <-done:
			p.post(Event{Kind: LinkDropped, link: gen})
		case <-ctx.Done():
		}
	})
}

func (p *Policy) post(ev Event) {
	if err := p.loop.Post(func() { p.Handle(ev) }); err != nil {
		p.logger.WithField("event", ev.Kind.String()).Debug("Event dropped, loop stopped")
	}
}
