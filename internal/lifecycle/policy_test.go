package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/eventloop"
	"github.com/srg/mastgate/internal/session"
	"github.com/srg/mastgate/internal/testutils"
	"github.com/srg/mastgate/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// stubSession records what the policy asks of it
type stubSession struct {
	state       session.State
	transitions []session.State
	teardowns   []error
	connects    []string
}

func (s *stubSession) State() session.State { return s.state }

func (s *stubSession) Transition(to session.State) error {
	if !session.CanTransition(s.state, to) {
		return errors.New("illegal")
	}
	s.state = to
	s.transitions = append(s.transitions, to)
	return nil
}

func (s *stubSession) AttemptConnect(_ context.Context, address string) error {
	s.connects = append(s.connects, address)
	return nil
}

func (s *stubSession) Teardown(cause error) {
	s.teardowns = append(s.teardowns, cause)
	s.state = session.StateScanning
}

func (s *stubSession) Disconnected() <-chan struct{} { return nil }

type stubLoop struct{ posted []func() }

func (l *stubLoop) Post(fn func()) error {
	l.posted = append(l.posted, fn)
	return nil
}

func (l *stubLoop) OnDelay(time.Duration, func()) func() { return func() {} }

func newStubPolicy(t *testing.T, sess *stubSession) *Policy {
	radio := testutils.NewFakeRadio(1)
	p := New(sess, radio, &stubLoop{}, Config{
		Target: device.Identity{Address: testutils.DefaultTestAddress},
		Scan:   device.ScanParams{Duration: time.Second},
	}, testutils.NewTestHelper(t).Logger)
	ctx, cancel := context.WithCancel(t.Context())
	p.ctx = ctx
	t.Cleanup(func() {
		cancel()
		p.Wait()
	})
	return p
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "AdvertisementMatched", AdvertisementMatched.String())
	assert.Equal(t, "ScanEnded", ScanEnded.String())
	assert.Equal(t, "ConnectFinished", ConnectFinished.String())
	assert.Equal(t, "LinkDropped", LinkDropped.String())
	assert.Equal(t, "EventKind(42)", EventKind(42).String())
}

func TestPolicy_MatchIgnoredOutsideScanning(t *testing.T) {
	sess := &stubSession{state: session.StateConnected}
	p := newStubPolicy(t, sess)

	p.Handle(Event{Kind: AdvertisementMatched, Address: testutils.DefaultTestAddress})

	assert.Empty(t, sess.transitions, "a match while connected MUST NOT start another attempt")
	assert.Empty(t, sess.connects)
}

func TestPolicy_StaleLinkDropIgnored(t *testing.T) {
	sess := &stubSession{state: session.StateConnected}
	p := newStubPolicy(t, sess)
	p.linkGen = 3

	p.Handle(Event{Kind: LinkDropped, link: 2})
	assert.Empty(t, sess.teardowns, "a drop of an earlier link MUST be ignored")

	p.Handle(Event{Kind: LinkDropped, link: 3})
	assert.Equal(t, []error{ErrLinkLost}, sess.teardowns, "a drop without cause MUST tear down with ErrLinkLost")
}

func TestPolicy_ExternalLinkDropRecoversFromAnyState(t *testing.T) {
	// GOAL: a drop reported from outside the policy carries no link generation
	// and MUST still tear down and rescan, whatever the state and link history

	states := []session.State{
		session.StateIdle,
		session.StateScanning,
		session.StateConnecting,
		session.StateServiceDiscovery,
		session.StateConnected,
		session.StateFailed,
	}

	for _, st := range states {
		for _, connectedBefore := range []bool{false, true} {
			name := st.String()
			if connectedBefore {
				name += " after connect"
			}
			t.Run(name, func(t *testing.T) {
				sess := &stubSession{state: st}
				p := newStubPolicy(t, sess)
				if connectedBefore {
					p.Handle(Event{Kind: ConnectFinished, Address: testutils.DefaultTestAddress})
					sess.state = st
				}

				p.Handle(Event{Kind: LinkDropped})

				assert.Equal(t, []error{ErrLinkLost}, sess.teardowns, "exactly one teardown MUST follow the drop")
				assert.Equal(t, session.StateScanning, sess.state)
			})
		}
	}
}

func TestPolicy_ConnectRunsOnNamedGoroutine(t *testing.T) {
	sess := &stubSession{state: session.StateScanning}
	p := newStubPolicy(t, sess)
	hook := logtest.NewLocal(p.logger)

	p.Handle(Event{Kind: AdvertisementMatched, Address: testutils.DefaultTestAddress})

	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "Connect attempt started" {
				return e.Data["goroutine"] == "connect"
			}
		}
		return false
	}, time.Second, time.Millisecond, "the attempt MUST run on the connect goroutine")
}

func TestPolicy_LinkDropWithoutChannelIsImmediate(t *testing.T) {
	sess := &stubSession{state: session.StateConnected}
	p := newStubPolicy(t, sess)
	loop := p.loop.(*stubLoop)

	p.Handle(Event{Kind: ConnectFinished, Address: testutils.DefaultTestAddress})

	assert.Len(t, loop.posted, 1, "a session without a link channel MUST report the drop right away")
}

func TestPolicy_ScanEndMatchedOrStoppedDoesNotRescan(t *testing.T) {
	sess := &stubSession{state: session.StateConnecting}
	p := newStubPolicy(t, sess)

	p.Handle(Event{Kind: ScanEnded, Reason: scanner.EndMatched})
	p.Handle(Event{Kind: ScanEnded, Reason: scanner.EndStopped})
	p.Handle(Event{Kind: ScanEnded, Reason: scanner.EndExpired})

	assert.False(t, p.scanner.Scanning(), "no scan MUST start while a connect attempt is in flight")
}

////////////////////////////////////////////////////////////////////////////////

type PolicyTestSuite struct {
	testutils.FakeRadioSuite

	states   chan session.Status
	sess     *session.Session
	loop     *eventloop.Loop
	loopDone chan struct{}
	cancel   context.CancelFunc
	policy   *Policy
}

func (s *PolicyTestSuite) SetupTest() {
	s.FakeRadioSuite.SetupTest()
	s.states = make(chan session.Status, 256)
	s.sess = session.New(s.Radio,
		session.WithLogger(s.Logger),
		session.WithStateChangeChannel(s.states))
}

func (s *PolicyTestSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
		<-s.loopDone
		s.policy.Wait()
	}
	s.cancel = nil
	s.FakeRadioSuite.TearDownTest()
}

func (s *PolicyTestSuite) start(radio device.Scanner, cfg Config) {
	if cfg.Target == (device.Identity{}) {
		cfg.Target = device.Identity{Address: testutils.DefaultTestAddress}
	}
	if cfg.Scan.Duration == 0 {
		cfg.Scan.Duration = time.Second
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(s.T().Context())
	s.loop = eventloop.New(s.Logger)
	s.loopDone = make(chan struct{})
	go func() {
		defer close(s.loopDone)
		_ = s.loop.Run(ctx)
	}()

	s.policy = New(s.sess, radio, s.loop, cfg, s.Logger)
	errc := make(chan error, 1)
	s.Require().NoError(s.loop.Post(func() { errc <- s.policy.Start(ctx) }))
	s.Require().NoError(<-errc)
}

// waitFor drains state changes until want is seen and returns the sequence
func (s *PolicyTestSuite) waitFor(want session.State) []session.State {
	seen := s.waitForStatus(want)
	states := make([]session.State, len(seen))
	for i, st := range seen {
		states[i] = st.State
	}
	return states
}

func (s *PolicyTestSuite) waitForStatus(want session.State) []session.Status {
	var seen []session.Status
	deadline := time.After(s.TestTimeout)
	for {
		select {
		case st := <-s.states:
			seen = append(seen, st)
			if st.State == want {
				return seen
			}
		case <-deadline:
			s.FailNowf("timeout", "state %s never reached, saw %v", want, seen)
			return seen
		}
	}
}

func (s *PolicyTestSuite) TestScanMatchConnect() {
	// GOAL: a matched advertisement leads straight to a connected session
	//
	// TEST SCENARIO: start → Scanning → match → Connecting → ServiceDiscovery → Connected

	s.start(s.Radio, Config{})

	seen := s.waitFor(session.StateConnected)
	s.Equal([]session.State{
		session.StateScanning,
		session.StateConnecting,
		session.StateServiceDiscovery,
		session.StateConnected,
	}, seen)

	client := s.Radio.Client(testutils.DefaultTestAddress)
	s.Require().NotNil(client)
	s.Equal(1, client.Connects())
	s.Require().Eventually(func() bool { return !s.policy.scanner.Scanning() }, s.TestTimeout, 5*time.Millisecond,
		"scanning MUST stop once the target is found")
}

func (s *PolicyTestSuite) TestLinkDropRescansAndReconnects() {
	// GOAL: a dropped link clears the session and the cycle starts over
	//
	// TEST SCENARIO: connect → radio drops link → Scanning → reconnect of the pooled client → Connected

	s.start(s.Radio, Config{})
	s.waitFor(session.StateConnected)

	client := s.Radio.Client(testutils.DefaultTestAddress)
	client.Drop()

	seen := s.waitFor(session.StateScanning)
	s.Equal([]session.State{session.StateScanning}, seen, "drop MUST reset to Scanning directly")

	s.waitFor(session.StateConnected)
	s.Equal(2, client.Connects(), "the pooled client MUST be reconnected")
	s.Equal(1, s.Radio.ClientCount())
}

func (s *PolicyTestSuite) TestConnectFailureReturnsToScanning() {
	// GOAL: every failed attempt routes back to scanning and the next match retries

	s.Radio.FailConnect(testutils.DefaultTestAddress, device.ErrTimeout)
	s.start(s.Radio, Config{})

	seen := s.waitFor(session.StateConnected)
	s.Equal([]session.State{
		session.StateScanning,
		session.StateConnecting,
		session.StateFailed,
		session.StateScanning,
		session.StateConnecting,
		session.StateServiceDiscovery,
		session.StateConnected,
	}, seen)
}

func (s *PolicyTestSuite) TestServiceNotFoundReturnsToScanning() {
	s.WithPeripheral().WithService("180A").WithCharacteristic("2A29", "read", []byte("Calypso"))
	s.FakeRadioSuite.SetupTest()
	s.sess = session.New(s.Radio, session.WithLogger(s.Logger), session.WithStateChangeChannel(s.states))

	s.start(s.Radio, Config{})

	seen := s.waitFor(session.StateFailed)
	s.Equal(session.StateServiceDiscovery, seen[len(seen)-2])
	teardown := s.waitForStatus(session.StateScanning)

	reason, ok := session.ReasonOf(teardown[len(teardown)-1].Error)
	s.True(ok)
	s.Equal(session.ServiceNotFound, reason, "teardown MUST carry the failure cause")
}

func (s *PolicyTestSuite) TestScanExpiryRestartsScan() {
	// GOAL: with no target around, scanning repeats indefinitely

	radio := testutils.NewFakeRadio(1)
	s.start(radio, Config{Scan: device.ScanParams{Duration: 10 * time.Millisecond}})

	for i := 0; i < 3; i++ {
		select {
		case <-radio.ScanStarted():
		case <-time.After(s.TestTimeout):
			s.FailNow("scan MUST restart after expiry")
		}
	}
	s.Equal(session.StateScanning, s.sess.State())
}

func (s *PolicyTestSuite) TestScanErrorIsRetriedAfterDelay() {
	s.Radio.FailScan(errors.New("adapter busy"))
	started := time.Now()
	s.start(s.Radio, Config{ScanRetryDelay: 50 * time.Millisecond})

	<-s.Radio.ScanStarted()
	s.Radio.FailScan(nil)

	s.waitFor(session.StateConnected)
	s.GreaterOrEqual(time.Since(started), 50*time.Millisecond, "retry MUST wait for the delay")
	s.GreaterOrEqual(len(s.Radio.Scans()), 2)
}

func (s *PolicyTestSuite) TestReconnectIsPaced() {
	// GOAL: the limiter spaces connect attempts after a drop

	s.start(s.Radio, Config{ReconnectInterval: 200 * time.Millisecond})
	s.waitFor(session.StateConnected)

	dropped := time.Now()
	s.Radio.Client(testutils.DefaultTestAddress).Drop()
	s.waitFor(session.StateConnecting)
	s.waitFor(session.StateConnected)

	s.GreaterOrEqual(time.Since(dropped), 150*time.Millisecond, "second attempt MUST be deferred by the limiter")
}

func TestPolicyTestSuite(t *testing.T) {
	suite.Run(t, new(PolicyTestSuite))
}
