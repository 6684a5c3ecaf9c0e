package windsensor

import (
	"math"
	"testing"
	"time"

	"github.com/srg/mastgate/internal/telemetry"
	"github.com/srg/mastgate/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	sample telemetry.Sample
	reads  int
}

func (f *fixedSource) LatestSample() telemetry.Sample {
	f.reads++
	return f.sample
}

type manualScheduler struct {
	period time.Duration
	fn     func()
}

func (m *manualScheduler) OnRepeat(period time.Duration, fn func()) func() {
	m.period, m.fn = period, fn
	return func() { m.fn = nil }
}

func TestDirectionToRadians(t *testing.T) {
	assert.Equal(t, 0.0, DirectionToRadians(0))
	assert.InDelta(t, math.Pi/4, DirectionToRadians(45), 1e-12)
	assert.InDelta(t, math.Pi, DirectionToRadians(180), 1e-12, "180° MUST map to +π, not -π")
	assert.InDelta(t, -math.Pi/2, DirectionToRadians(270), 1e-12)
	assert.InDelta(t, -math.Pi/180, DirectionToRadians(359), 1e-12)
}

func TestDirectionToRadians_RangeAndMonotonicPieces(t *testing.T) {
	prev := math.Inf(-1)
	for deg := 0.0; deg < 360; deg += 0.5 {
		rad := DirectionToRadians(deg)

		require.Greater(t, rad, -math.Pi, "angle for %v° MUST be > -π", deg)
		require.LessOrEqual(t, rad, math.Pi, "angle for %v° MUST be <= π", deg)

		if deg == 180.5 {
			prev = math.Inf(-1) // wrap point
		}
		require.Greater(t, rad, prev, "conversion MUST be increasing on each side of the wrap (%v°)", deg)
		prev = rad
	}
}

func TestSensor_UpdatePublishesAllFour(t *testing.T) {
	src := &fixedSource{sample: telemetry.Sample{WindSpeed: 3.2, WindDirection: 90, Battery: 0.8, Temperature: 12}}
	s := New(src, 0, testutils.NewTestHelper(t).Logger)

	var speeds []float64
	s.SpeedMS.Connect(func(v float64) { speeds = append(speeds, v) })

	s.Update()
	s.Update()

	assert.Equal(t, []float64{3.2, 3.2}, speeds, "each tick MUST publish, even when unchanged")

	angle, ok := s.AngleRad.Get()
	require.True(t, ok)
	assert.InDelta(t, math.Pi/2, angle, 1e-12)

	temp, _ := s.TempC.Get()
	assert.Equal(t, 12.0, temp)

	soc, _ := s.SoC.Get()
	assert.Equal(t, 0.8, soc)
}

func TestSensor_PublishesZeroSampleBeforeData(t *testing.T) {
	s := New(&fixedSource{}, time.Second, testutils.NewTestHelper(t).Logger)

	s.Update()

	speed, ok := s.SpeedMS.Get()
	assert.True(t, ok)
	assert.Equal(t, 0.0, speed)
}

func TestSensor_Start(t *testing.T) {
	src := &fixedSource{}
	s := New(src, 250*time.Millisecond, testutils.NewTestHelper(t).Logger)
	sched := &manualScheduler{}

	stop := s.Start(sched)

	assert.Equal(t, 250*time.Millisecond, sched.period)
	require.NotNil(t, sched.fn)
	sched.fn()
	sched.fn()
	assert.Equal(t, 2, src.reads)

	stop()
	assert.Nil(t, sched.fn)
}

func TestNew_DefaultInterval(t *testing.T) {
	s := New(&fixedSource{}, 0, nil)
	assert.Equal(t, DefaultInterval, s.interval)
}
