// Package windsensor periodically publishes the session's latest sample as
// four observable values.
package windsensor

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/observable"
	"github.com/srg/mastgate/internal/telemetry"
)

// DefaultInterval is the publish period
const DefaultInterval = 500 * time.Millisecond

// SampleSource returns the most recent sample without blocking
type SampleSource interface {
	LatestSample() telemetry.Sample
}

// Scheduler runs a callback periodically, one callback at a time
type Scheduler interface {
	OnRepeat(period time.Duration, fn func()) (cancel func())
}

// Sensor publishes speed (m/s), apparent angle (rad), temperature and battery
type Sensor struct {
	SpeedMS  *observable.Value[float64]
	AngleRad *observable.Value[float64]
	TempC    *observable.Value[float64]
	SoC      *observable.Value[float64]

	source   SampleSource
	interval time.Duration
	logger   *logrus.Logger
}

// New creates a sensor reading from source every interval
func New(source SampleSource, interval time.Duration, logger *logrus.Logger) *Sensor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Sensor{
		SpeedMS:  observable.NewValue[float64](),
		AngleRad: observable.NewValue[float64](),
		TempC:    observable.NewValue[float64](),
		SoC:      observable.NewValue[float64](),
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Start registers the periodic update on the scheduler
func (s *Sensor) Start(loop Scheduler) (stop func()) {
	s.logger.WithField("interval", s.interval).Debug("Wind sensor polling started")
	return loop.OnRepeat(s.interval, s.Update)
}

// Update reads the latest sample and publishes all four values
func (s *Sensor) Update() {
	sample := s.source.LatestSample()

	s.SpeedMS.Set(sample.WindSpeed)
	s.AngleRad.Set(DirectionToRadians(sample.WindDirection))
	s.TempC.Set(sample.Temperature)
	s.SoC.Set(sample.Battery)
}

// DirectionToRadians converts degrees to radians in (-π, π]
func DirectionToRadians(deg float64) float64 {
	rad := deg / 180 * math.Pi
	if rad > math.Pi {
		rad -= 2 * math.Pi
	}
	return rad
}
